package util

import (
	"io"

	"github.com/sirupsen/logrus"
)

// CloseResource closes c, logging rather than returning any failure.
func CloseResource(log *logrus.Entry, name string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.WithError(err).Warnf("Failed to close %s cleanly", name)
	}
}
