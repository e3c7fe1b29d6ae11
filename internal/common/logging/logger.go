package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

// Options controls how a run logger is built.
type Options struct {
	// Log level, e.g. debug, info, warn, error.
	Level string
	// In quiet mode the console only receives warnings and errors; the log file still gets everything.
	Quiet bool
	// Console destination. Defaults to os.Stdout.
	Console io.Writer
	// Path of the log file. File logging is disabled if empty.
	LogFile string
	// Maximum size in megabytes of the log file before it gets rotated.
	MaxSizeMb int
	// Maximum number of rotated log files to retain.
	MaxBackups int
}

// NewRunLogger builds the logger used for a single run. The logger itself writes nowhere; output goes
// through one hook per destination so that the console and the log file can filter levels independently.
// The returned closer flushes and closes the log file.
func NewRunLogger(opts Options) (*logrus.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(level)

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	consoleLevel := level
	if opts.Quiet && consoleLevel > logrus.WarnLevel {
		consoleLevel = logrus.WarnLevel
	}
	logger.AddHook(&WriterHook{
		Writer:    console,
		Formatter: &CommandLineFormatter{},
		LogLevels: levelsUpTo(consoleLevel),
	})

	var closer io.Closer = nopCloser{}
	if opts.LogFile != "" {
		maxSize := opts.MaxSizeMb
		if maxSize <= 0 {
			maxSize = 100
		}
		file := &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
		}
		logger.AddHook(&WriterHook{
			Writer:    file,
			Formatter: FileFormatter(),
			LogLevels: levelsUpTo(level),
		})
		closer = file
	}
	return logger, closer, nil
}

// ParseLevel accepts the level names used on the command line, including "warning" and "critical".
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "":
		return logrus.InfoLevel, nil
	case "critical":
		return logrus.FatalLevel, nil
	}
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel, errors.Errorf("unknown log level: %s", level)
	}
	return l, nil
}

func levelsUpTo(max logrus.Level) []logrus.Level {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= max {
			levels = append(levels, l)
		}
	}
	return levels
}

// WriterHook sends entries of the given levels to Writer, formatted with Formatter.
type WriterHook struct {
	Writer    io.Writer
	Formatter logrus.Formatter
	LogLevels []logrus.Level
}

func (h *WriterHook) Levels() []logrus.Level {
	return h.LogLevels
}

func (h *WriterHook) Fire(entry *logrus.Entry) error {
	line, err := h.Formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.Writer.Write(line)
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
