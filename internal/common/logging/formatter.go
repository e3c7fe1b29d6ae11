package logging

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CommandLineFormatter prints only the message followed by any fields in key=value form.
// It is used for the console, where timestamps and levels are noise for an operator watching a run.
type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	var sb strings.Builder
	if entry.Level <= log.WarnLevel {
		sb.WriteString(strings.ToUpper(entry.Level.String()))
		sb.WriteString(": ")
	}
	sb.WriteString(entry.Message)
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == Stacktrace {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, entry.Data[k]))
	}
	sb.WriteString("\n")
	return []byte(sb.String()), nil
}

// FileFormatter is the formatter used for the run log on disk.
func FileFormatter() log.Formatter {
	return &log.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: RFC3339Milli,
	}
}
