package logging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// PrometheusHook implements logrus.Hook and counts log lines by level.
type PrometheusHook struct {
	counter *prometheus.CounterVec
}

// NewPrometheusHook creates the log line counter on the given registerer.
func NewPrometheusHook(reg prometheus.Registerer) *PrometheusHook {
	counter := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "renderbench_log_messages",
		Help: "Total number of log lines logged by level",
	}, []string{"level"})
	for _, level := range []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel} {
		counter.WithLabelValues(level.String())
	}
	return &PrometheusHook{counter: counter}
}

func (h *PrometheusHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *PrometheusHook) Fire(entry *logrus.Entry) error {
	h.counter.WithLabelValues(entry.Level.String()).Inc()
	return nil
}
