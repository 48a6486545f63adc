package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

type Options struct {
	Level   string
	LogsDir string
	Graylog string
	Start   time.Time
	Stdout  io.Writer
}

// Logger is the process logger and the resources behind it.
type Logger struct {
	zerolog.Logger

	file *os.File
	path string
}

// ParseLevel maps a configured level name onto a zerolog level.
// Unknown names fall back to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToUpper(name) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LogFilePath names the log file for a run started at start.
func LogFilePath(logsDir, name string, start time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", name, start.Format("20060102_150405")))
}

// Setup builds a logger writing colour console output to stdout, plain console
// output to a per-run file under LogsDir and, when Graylog is set, GELF.
func Setup(opts Options) (*Logger, error) {
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	writers := []io.Writer{
		zerolog.ConsoleWriter{
			Out:        opts.Stdout,
			TimeFormat: time.RFC3339,
		},
	}

	l := &Logger{}
	if opts.LogsDir != "" {
		if err := os.MkdirAll(opts.LogsDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs dir: %w", err)
		}
		l.path = LogFilePath(opts.LogsDir, "bustx", opts.Start)
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        f,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}

	if opts.Graylog != "" {
		gw, err := gelf.NewWriter(opts.Graylog)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to create graylog writer: %w", err)
		}
		writers = append(writers, gw)
	}

	mlw := zerolog.MultiLevelWriter(writers...)
	l.Logger = zerolog.New(mlw).Level(ParseLevel(opts.Level)).With().Timestamp().Logger()
	l.Info().Str("loglevel", l.GetLevel().String()).Msg("Logging set up")

	return l, nil
}

// Path returns the log file path, or "" when file logging is off.
func (l *Logger) Path() string {
	return l.path
}

func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
