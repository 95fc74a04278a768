// internal/journal/nats.go
// JetStream journal: stream setup and asynchronous publishing.
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erilali/turing/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	StreamName         = "SESSIONS"
	jetstreamRetention = 24 * time.Hour
	maxPendingPublish  = 256
	drainTimeout       = 2 * time.Second
)

// NATS publishes events to a JetStream stream. Publishing is asynchronous;
// Close waits briefly for outstanding acks before draining the connection.
type NATS struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *logger.Logger
}

// DialNATS connects to url and makes sure the SESSIONS stream exists with
// the current configuration.
func DialNATS(url string, log *logger.Logger) (*NATS, error) {
	log = logger.OrNop(log)
	if url == "" {
		url = nats.DefaultURL
	}

	log.Infof("Connecting to NATS at %s", url)
	nc, err := nats.Connect(url, nats.Name("turing-client"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream(nats.PublishAsyncMaxPending(maxPendingPublish))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if err := ensureStream(js, log); err != nil {
		nc.Close()
		return nil, err
	}
	return &NATS{nc: nc, js: js, log: log}, nil
}

func streamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{subjectRoot + ".>"},
		Storage:  nats.FileStorage,
		MaxAge:   jetstreamRetention,
	}
}

func ensureStream(js nats.JetStreamContext, log *logger.Logger) error {
	cfg := streamConfig()
	if _, err := js.StreamInfo(cfg.Name); err != nil {
		if _, err := js.AddStream(cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Infof("Created stream: %s", cfg.Name)
		return nil
	}
	if _, err := js.UpdateStream(cfg); err != nil {
		return fmt.Errorf("update stream %s: %w", cfg.Name, err)
	}
	log.Debugf("Updated stream: %s", cfg.Name)
	return nil
}

func (n *NATS) Record(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		n.log.Errorf("Failed to marshal journal event: %v", err)
		return
	}
	if _, err := n.js.PublishAsync(e.Subject(), data); err != nil {
		n.log.Warnf("Failed to publish %s to NATS: %v", e.Subject(), err)
	}
}

func (n *NATS) Close() error {
	select {
	case <-n.js.PublishAsyncComplete():
	case <-time.After(drainTimeout):
		n.log.Warnf("%d journal events still unacknowledged", n.js.PublishAsyncPending())
	}
	return n.nc.Drain()
}
