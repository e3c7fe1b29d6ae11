package orchestrator

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
	"github.com/armadaproject/renderbench/internal/renderbench/configuration"
)

func TestBuild_Dispatch(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.RunId = ""

	runner, cleanup, err := Build(runcontext.Background(), cfg, configuration.ModeDispatch, prometheus.NewRegistry(), io.Discard)
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, runner.dispatcher)
	assert.Nil(t, runner.drain)
	assert.Nil(t, runner.verifier)
	assert.Nil(t, runner.archive)
	assert.NotNil(t, runner.summary)
	assert.NotEmpty(t, runner.config.RunId, "a run id is generated")
}

func TestBuild_QuietSuppressesSummary(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Quiet = true

	runner, cleanup, err := Build(runcontext.Background(), cfg, configuration.ModeDispatch, prometheus.NewRegistry(), io.Discard)
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, runner.summary)
}

func TestBuild_InvalidEndpoint(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Dispatch.Endpoint = "://nope"

	_, cleanup, err := Build(runcontext.Background(), cfg, configuration.ModeDispatch, prometheus.NewRegistry(), io.Discard)
	assert.Error(t, err)
	cleanup()
}

func TestBuild_Verify(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	cfg := testConfig(t.TempDir())
	cfg.Aws.Endpoint = "http://localhost:4566"

	runner, cleanup, err := Build(runcontext.Background(), cfg, configuration.ModeVerify, prometheus.NewRegistry(), io.Discard)
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, runner.dispatcher)
	assert.NotNil(t, runner.verifier)
}

func TestBuild_RedisDrain(t *testing.T) {
	db, err := miniredis.Run()
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig(t.TempDir())
	cfg.Verify.Enabled = false
	cfg.Drain.Backend = configuration.DrainBackendRedis
	cfg.Drain.Redis.Redis.Addrs = []string{db.Addr()}
	cfg.Drain.Redis.Key = "render:jobs"

	runner, cleanup, err := Build(runcontext.Background(), cfg, configuration.ModeTest, prometheus.NewRegistry(), io.Discard)
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, runner.drain)
	assert.Equal(t, "render:jobs", runner.drain.Queue())
	assert.Nil(t, runner.verifier)
}

func TestBuild_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Verify.Enabled = false
	cfg.Drain.Backend = configuration.DrainBackendRedis
	cfg.Drain.Redis.Redis.Addrs = []string{freeAddr(t)}
	cfg.Drain.Redis.Redis.DialTimeout = 100 * time.Millisecond
	cfg.Drain.Redis.Key = "render:jobs"

	_, cleanup, err := Build(runcontext.Background(), cfg, configuration.ModeTest, prometheus.NewRegistry(), io.Discard)
	assert.Error(t, err)
	cleanup()
}

func TestBuild_JetStreamDrain(t *testing.T) {
	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	server := test.RunServer(&opts)
	defer server.Shutdown()

	cfg := testConfig(t.TempDir())
	cfg.Verify.Enabled = false
	cfg.Drain.Backend = configuration.DrainBackendJetStream
	cfg.Drain.JetStream.Url = server.ClientURL()
	cfg.Drain.JetStream.Stream = "RENDER"
	cfg.Drain.JetStream.Consumer = "workers"

	runner, cleanup, err := Build(runcontext.Background(), cfg, configuration.ModeTest, prometheus.NewRegistry(), io.Discard)
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, runner.drain)
	assert.Equal(t, "RENDER/workers", runner.drain.Queue())
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "renderbench_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	_, port, err := net.SplitHostPort(freeAddr(t))
	require.NoError(t, err)
	var portNumber uint16
	_, err = fmt.Sscan(port, &portNumber)
	require.NoError(t, err)

	var scraped string
	report := ServeMetrics(runcontext.Background(), portNumber, reg, func(ctx *runcontext.Context) *Report {
		require.Eventually(t, func() bool {
			resp, err := http.Get(fmt.Sprintf("http://localhost:%d/metrics", portNumber))
			if err != nil {
				return false
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			scraped = string(body)
			return resp.StatusCode == http.StatusOK
		}, 5*time.Second, 20*time.Millisecond)
		return &Report{Status: StatusCompleted}
	})

	assert.Equal(t, StatusCompleted, report.Status)
	assert.Contains(t, scraped, "renderbench_test_total 1")
}

func TestServeMetrics_Disabled(t *testing.T) {
	called := false
	ServeMetrics(runcontext.Background(), 0, prometheus.NewRegistry(), func(*runcontext.Context) *Report {
		called = true
		return &Report{}
	})
	assert.True(t, called)
}

// freeAddr returns an address nothing is listening on.
func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}
