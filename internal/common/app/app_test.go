package app

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/armadaproject/renderbench/internal/common/logging"
)

func TestCreateContextWithShutdown_Signal(t *testing.T) {
	ctx, stop := CreateContextWithShutdown(logging.NullEntry())
	defer stop()

	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled on SIGTERM")
	}
}

func TestCreateContextWithShutdown_Stop(t *testing.T) {
	ctx, stop := CreateContextWithShutdown(logging.NullEntry())
	stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled by stop")
	}
}
