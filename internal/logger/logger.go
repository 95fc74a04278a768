// internal/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level      string // debug, info, warn, error, fatal
	LogToFile  bool
	LogToJSON  bool
	FilePath   string
	MaxSize    int  // megabytes
	MaxBackups int  // number of backups
	MaxAge     int  // days
	Compress   bool // compress old log files
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogToFile:  false,
		LogToJSON:  false,
		FilePath:   "turing-client.log",
		MaxSize:    10, // 10 MB
		MaxBackups: 5,  // 5 backups
		MaxAge:     30, // 30 days
		Compress:   true,
	}
}

// InitLogger replaces the global zerolog logger. Component loggers created
// afterwards inherit its writers and level.
func InitLogger(config LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	var writers []io.Writer
	if !config.LogToJSON {
		writers = append(writers, consoleWriter(os.Stderr))
	} else {
		writers = append(writers, os.Stderr)
	}
	if config.LogToFile && config.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	var output io.Writer
	if len(writers) > 1 {
		output = io.MultiWriter(writers...)
	} else {
		output = writers[0]
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			"component",
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"component"},
		FormatLevel: func(i interface{}) string {
			level := strings.ToUpper(fmt.Sprintf("%s", i))
			color := "37"
			switch level {
			case "DEBUG":
				color = "36"
			case "INFO":
				color = "32"
			case "WARN":
				color = "33"
			case "ERROR":
				color = "31"
			case "FATAL":
				color = "35"
			}
			return "\033[" + color + "m[ " + fmt.Sprintf("%-5s", level) + " ]\033[0m"
		},
		FormatTimestamp: func(i interface{}) string {
			return fmt.Sprintf("\033[90m%s\033[0m", i)
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("\033[1m%s\033[0m", i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("\033[34m%s\033[0m: ", i)
		},
		FormatFieldValue: func(i interface{}) string {
			return fmt.Sprintf("\033[37m%s\033[0m", i)
		},
		FormatErrFieldName: func(i interface{}) string {
			return fmt.Sprintf("\033[31m%s\033[0m: ", i)
		},
		FormatErrFieldValue: func(i interface{}) string {
			return fmt.Sprintf("\033[31m%s\033[0m", i)
		},
	}
}

type Logger struct {
	logger zerolog.Logger
}

func NewLogger(component string) *Logger {
	return &Logger{
		logger: log.With().Str("component", component).Logger(),
	}
}

// Nop returns a logger that discards everything. Used by tests and as the
// fallback when a component is built without one.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		logger: ctx.Logger(),
	}
}

func (l *Logger) Debug(msg string)                       { l.logger.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, v ...interface{}) { l.logger.Debug().Msgf(format, v...) }
func (l *Logger) Info(msg string)                        { l.logger.Info().Msg(msg) }
func (l *Logger) Infof(format string, v ...interface{})  { l.logger.Info().Msgf(format, v...) }
func (l *Logger) Warn(msg string)                        { l.logger.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, v ...interface{})  { l.logger.Warn().Msgf(format, v...) }
func (l *Logger) Error(msg string)                       { l.logger.Error().Msg(msg) }
func (l *Logger) Errorf(format string, v ...interface{}) { l.logger.Error().Msgf(format, v...) }
func (l *Logger) Fatal(msg string)                       { l.logger.Fatal().Msg(msg) }
func (l *Logger) Fatalf(format string, v ...interface{}) { l.logger.Fatal().Msgf(format, v...) }

// LogEvent writes a session event with a human readable message. Known
// events get a coloured one-line rendering for the console writer; anything
// else falls back to the event name with underscores replaced.
func (l *Logger) LogEvent(level string, event string, subject string, detail string) {
	var message string
	switch event {
	case "connection_opened":
		message = "Connected"
		if subject != "" {
			message = fmt.Sprintf("Connected to \033[96m%s\033[0m", subject)
		}
	case "reconnect_scheduled":
		message = fmt.Sprintf("Reconnect attempt \033[93m%s\033[0m scheduled", detail)
	case "reconnect_exhausted":
		message = "Giving up after \033[93m" + detail + "\033[0m attempts"
	case "match_found":
		message = fmt.Sprintf("Match \033[96m%s\033[0m found, role \033[93m%s\033[0m", subject, detail)
	case "matched":
		message = fmt.Sprintf("Matched into game \033[96m%s\033[0m", subject)
	case "message_received":
		if subject != "" {
			message = fmt.Sprintf("\033[95m%s\033[0m: \033[97m%s\033[0m", subject, detail)
		} else {
			message = "Message received"
		}
	case "guess_result":
		message = fmt.Sprintf("Guess was \033[93m%s\033[0m", detail)
	default:
		evt := l.logger.With().Str("event", event)
		if subject != "" {
			evt = evt.Str("subject", subject)
		}
		if detail != "" {
			evt = evt.Str("detail", detail)
			message = fmt.Sprintf("%s: %s", strings.ReplaceAll(event, "_", " "), detail)
		} else {
			message = strings.ReplaceAll(event, "_", " ")
		}
		logger := evt.Logger()
		emit(&logger, level, message)
		return
	}
	emit(&l.logger, level, message)
}

func emit(logger *zerolog.Logger, level string, message string) {
	switch level {
	case "debug":
		logger.Debug().Msg(message)
	case "warn":
		logger.Warn().Msg(message)
	case "error":
		logger.Error().Msg(message)
	case "fatal":
		logger.Fatal().Msg(message)
	default:
		logger.Info().Msg(message)
	}
}
