package dispatcher

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
)

func testContextLoggingTo(w io.Writer) *runcontext.Context {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.DebugLevel)
	return runcontext.New(runcontext.Background(), logrus.NewEntry(logger))
}
