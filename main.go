// main.go
// Command-line client: queues for a match, confirms it and plays the room over the realtime API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erilali/turing/internal/auth"
	"github.com/erilali/turing/internal/config"
	"github.com/erilali/turing/internal/journal"
	"github.com/erilali/turing/internal/logger"
	"github.com/urfave/cli/v3"
)

// runtime is what every command needs once Before has run.
type runtime struct {
	cfg     config.Config
	log     *logger.Logger
	journal journal.Recorder
	token   auth.TokenSource
}

var rt *runtime

func main() {
	cmd := &cli.Command{
		Name:  "turing",
		Usage: "realtime client for the judge/witness game",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file read before the environment",
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "bearer credential",
				Sources: cli.EnvVars("TURING_TOKEN"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log at debug level",
			},
			&cli.BoolFlag{
				Name:  "json-logs",
				Usage: "write JSON logs instead of the console format",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			queueCommand(),
			roomCommand(),
			apiCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "turing: %v\n", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("env-file"))
	if err != nil {
		return ctx, err
	}

	logConfig, err := config.LoadLoggerConfig(cfg.LoggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading logger config: %v, using defaults\n", err)
	}
	if cmd.Bool("debug") {
		logConfig.Level = "debug"
	}
	if cmd.Bool("json-logs") {
		logConfig.LogToJSON = true
	}
	logger.InitLogger(logConfig)
	log := logger.NewLogger("cli")
	log.WithFields(map[string]interface{}{
		"level":       logConfig.Level,
		"log_to_file": logConfig.LogToFile,
		"ws_base":     cfg.WSBase,
		"journal":     cfg.Journal,
	}).Debug("Configuration loaded")

	token := auth.Static(cfg.Token)
	if t := cmd.String("token"); t != "" {
		token = auth.Static(t)
	}

	rt = &runtime{
		cfg:     cfg,
		log:     log,
		journal: openJournal(cfg, log),
		token:   token,
	}
	return ctx, nil
}

func teardown(ctx context.Context, cmd *cli.Command) error {
	if rt == nil {
		return nil
	}
	if err := rt.journal.Close(); err != nil {
		rt.log.Warnf("closing journal: %v", err)
	}
	return nil
}

// openJournal connects the configured event mirror. A bus that cannot be
// reached is logged and the client runs without a journal.
func openJournal(cfg config.Config, log *logger.Logger) journal.Recorder {
	jlog := logger.NewLogger("journal")
	switch cfg.Journal {
	case config.JournalNATS:
		j, err := journal.DialNATS(cfg.NatsURL, jlog)
		if err != nil {
			log.Errorf("Error connecting to NATS: %v", err)
			log.Warn("Running without a session journal")
			return journal.Nop{}
		}
		log.Info("Journaling sessions to NATS JetStream")
		return j
	case config.JournalRedis:
		j, err := journal.NewRedis(cfg.Redis, jlog)
		if err != nil {
			log.Errorf("Error connecting to Redis: %v", err)
			log.Warn("Running without a session journal")
			return journal.Nop{}
		}
		log.Info("Journaling sessions to Redis pub/sub")
		return j
	}
	return journal.Nop{}
}
