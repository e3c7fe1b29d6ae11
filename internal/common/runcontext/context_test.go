package runcontext

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultLogger = logrus.NewEntry(logrus.New()).WithField("foo", "bar")

func TestNew(t *testing.T) {
	ctx := New(context.Background(), defaultLogger)
	require.Equal(t, defaultLogger, ctx.Log)
	require.Equal(t, context.Background(), ctx.Context)
}

func TestNew_NilLogger(t *testing.T) {
	ctx := New(context.Background(), nil)
	require.NotNil(t, ctx.Log)
	ctx.Log.Info("discarded")
}

func TestWithLogField(t *testing.T) {
	ctx := WithLogField(New(context.Background(), logrus.NewEntry(logrus.New())), "phase", "dispatch")
	assert.Equal(t, logrus.Fields{"phase": "dispatch"}, ctx.Log.Data)
}

func TestWithLogFields(t *testing.T) {
	ctx := WithLogFields(New(context.Background(), logrus.NewEntry(logrus.New())), logrus.Fields{"phase": "verify", "bucket": "pdfs"})
	assert.Equal(t, logrus.Fields{"phase": "verify", "bucket": "pdfs"}, ctx.Log.Data)
}

func TestWithCancel(t *testing.T) {
	ctx, cancel := WithCancel(New(context.Background(), defaultLogger))
	cancel()
	<-ctx.Done()
	assert.Equal(t, context.Canceled, ctx.Err())
	assert.Equal(t, defaultLogger, ctx.Log)
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(Background(), 50*time.Millisecond)
	defer cancel()
	select {
	case <-time.After(5 * time.Second):
		t.Fatalf("context not timed out")
	case <-ctx.Done():
	}
	assert.Equal(t, context.DeadlineExceeded, ctx.Err())
}

func TestErrGroup(t *testing.T) {
	g, ctx := ErrGroup(New(context.Background(), defaultLogger))
	assert.Equal(t, defaultLogger, ctx.Log)
	g.Go(func() error { return nil })
	require.NoError(t, g.Wait())
}
