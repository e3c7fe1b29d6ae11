package verifier

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
)

// fakeStore reports an object as present once the number of rounds it has been asked about reaches its
// entry in appearsAfter. Keys absent from appearsAfter never appear.
type fakeStore struct {
	mu           sync.Mutex
	appearsAfter map[string]int
	asked        map[string]int
	err          map[string]error
	calls        int
	onCall       func()
}

func newFakeStore(appearsAfter map[string]int) *fakeStore {
	return &fakeStore{appearsAfter: appearsAfter, asked: map[string]int{}, err: map[string]error{}}
}

func (s *fakeStore) Exists(_ *runcontext.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.onCall != nil {
		s.onCall()
	}
	if err, ok := s.err[key]; ok {
		return false, err
	}
	s.asked[key]++
	after, ok := s.appearsAfter[key]
	return ok && s.asked[key] >= after, nil
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func runVerify(ctx *runcontext.Context, v *Verifier, fakeClock *clock.FakeClock, jobIds []string, interval, timeout time.Duration) *Report {
	done := make(chan *Report, 1)
	go func() {
		done <- v.Verify(ctx, jobIds, interval, timeout)
	}()
	for {
		select {
		case r := <-done:
			return r
		default:
		}
		if fakeClock.HasWaiters() {
			fakeClock.Step(interval)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestVerify_ConfirmsOverSeveralRounds(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Now())
	store := newFakeStore(map[string]int{"a.pdf": 1, "b.pdf": 2, "c.pdf": 3})
	v := New(store, WithClock(fakeClock))

	report := runVerify(runcontext.Background(), v, fakeClock, []string{"a", "b", "c"}, 5*time.Second, time.Minute)

	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, 3, report.TotalJobs)
	assert.Equal(t, 3, report.CompletedJobs)
	assert.Equal(t, 3, report.Rounds)
	assert.Empty(t, report.FailedJobs)
	assert.Equal(t, 0, report.FailedCount)
	assert.Equal(t, 10.0, report.ElapsedSeconds)
	assert.InDelta(t, 0.3, report.ThroughputPerSecond, 1e-9)
	// a is confirmed in the first round and never asked about again.
	assert.Equal(t, 1+2+3, store.callCount())
}

func TestVerify_SlowStoreStopsAtTimeout(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Now())
	store := newFakeStore(nil)
	store.onCall = func() { fakeClock.Step(300 * time.Millisecond) }
	v := New(store, WithClock(fakeClock))
	jobIds := make([]string, 20)
	for i := range jobIds {
		jobIds[i] = fmt.Sprintf("job-%02d", i)
	}

	report := runVerify(runcontext.Background(), v, fakeClock, jobIds, 500*time.Millisecond, time.Second)

	assert.Equal(t, StatusTimeout, report.Status)
	assert.Equal(t, 1, report.Rounds)
	// Calls start at 0s, 0.3s, 0.6s and 0.9s; the check due at 1.2s is past the deadline.
	assert.Equal(t, 4, store.callCount())
	assert.InDelta(t, 1.2, report.ElapsedSeconds, 1e-9)
	assert.LessOrEqual(t, report.ElapsedSeconds, 1.5)
	assert.Equal(t, jobIds, report.FailedJobs)
}

func TestVerify_AlreadyConfirmedReturnsImmediately(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Now())
	store := newFakeStore(map[string]int{"a.pdf": 1, "b.pdf": 1})
	v := New(store, WithClock(fakeClock))

	first := runVerify(runcontext.Background(), v, fakeClock, []string{"a", "b"}, time.Second, time.Minute)
	require.Equal(t, StatusCompleted, first.Status)
	calls := store.callCount()

	second := v.Verify(runcontext.Background(), []string{"a", "b"}, time.Second, time.Minute)
	assert.Equal(t, StatusCompleted, second.Status)
	assert.Equal(t, 2, second.CompletedJobs)
	assert.Equal(t, 0, second.Rounds)
	assert.Equal(t, 0.0, second.ElapsedSeconds)
	assert.Equal(t, calls, store.callCount())
}

func TestVerify_NeverConfirmedTimesOut(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Now())
	v := New(newFakeStore(nil), WithClock(fakeClock))
	jobIds := []string{"c", "a", "b"}

	report := runVerify(runcontext.Background(), v, fakeClock, jobIds, 3*time.Second, 10*time.Second)

	assert.Equal(t, StatusTimeout, report.Status)
	assert.Equal(t, 0, report.CompletedJobs)
	assert.Equal(t, jobIds, report.FailedJobs)
	assert.Equal(t, 3, report.FailedCount)
	assert.LessOrEqual(t, report.ElapsedSeconds, (10*time.Second).Seconds()+(3*time.Second).Seconds())
	assert.Equal(t, 0.0, report.ThroughputPerSecond)
}

func TestVerify_TimeoutListsFailuresInInputOrder(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Now())
	v := New(newFakeStore(map[string]int{"b.pdf": 1}), WithClock(fakeClock))

	report := runVerify(runcontext.Background(), v, fakeClock, []string{"d", "b", "a", "c"}, time.Second, 3*time.Second)

	assert.Equal(t, StatusTimeout, report.Status)
	assert.Equal(t, 1, report.CompletedJobs)
	assert.Equal(t, []string{"d", "a", "c"}, report.FailedJobs)
}

func TestVerify_StoreErrorsCountAsNotFound(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Now())
	store := newFakeStore(map[string]int{"a.pdf": 1, "b.pdf": 1})
	store.err["b.pdf"] = errors.New("SlowDown")
	v := New(store, WithClock(fakeClock))

	report := runVerify(runcontext.Background(), v, fakeClock, []string{"a", "b"}, time.Second, 2*time.Second)

	assert.Equal(t, StatusTimeout, report.Status)
	assert.Equal(t, 1, report.CompletedJobs)
	assert.Equal(t, []string{"b"}, report.FailedJobs)
}

func TestVerify_CustomKeySuffix(t *testing.T) {
	store := newFakeStore(map[string]int{"a.docx": 1})
	v := New(store, WithKeySuffix(".docx"), WithClock(clock.NewFakeClock(time.Now())))

	report := v.Verify(runcontext.Background(), []string{"a"}, time.Second, time.Minute)
	assert.Equal(t, StatusCompleted, report.Status)
}

func TestVerify_EmptyInput(t *testing.T) {
	v := New(newFakeStore(nil), WithClock(clock.NewFakeClock(time.Now())))
	report := v.Verify(runcontext.Background(), nil, time.Second, time.Minute)
	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, 0, report.TotalJobs)
	assert.Equal(t, 0, report.Rounds)
}

func TestVerify_InterruptedWhileWaiting(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Now())
	v := New(newFakeStore(map[string]int{"a.pdf": 1}), WithClock(fakeClock))
	ctx, cancel := runcontext.WithCancel(runcontext.Background())

	done := make(chan *Report, 1)
	go func() {
		done <- v.Verify(ctx, []string{"a", "b", "c"}, time.Minute, time.Hour)
	}()
	require.Eventually(t, fakeClock.HasWaiters, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case report := <-done:
		assert.Equal(t, StatusInterrupted, report.Status)
		assert.Equal(t, 1, report.CompletedJobs)
		assert.Equal(t, 3, report.TotalJobs)
		assert.Equal(t, 2, report.FailedCount)
		assert.Empty(t, report.FailedJobs)
	case <-time.After(5 * time.Second):
		t.Fatal("Verify did not observe cancellation")
	}
}

func TestVerify_InterruptedMidRound(t *testing.T) {
	ctx, cancel := runcontext.WithCancel(runcontext.Background())
	store := newFakeStore(map[string]int{"a.pdf": 1, "b.pdf": 1, "c.pdf": 1})
	store.onCall = func() {
		if store.calls == 2 {
			cancel()
		}
	}
	v := New(store, WithClock(clock.NewFakeClock(time.Now())))

	report := v.Verify(ctx, []string{"a", "b", "c"}, time.Second, time.Minute)
	assert.Equal(t, StatusInterrupted, report.Status)
	assert.Equal(t, 2, report.CompletedJobs)
	assert.Equal(t, 2, store.callCount())
}

func TestVerify_LogsAtMostTenFailedJobs(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	ctx := runcontext.New(runcontext.Background(), logrus.NewEntry(logger))

	jobIds := make([]string, 12)
	for i := range jobIds {
		jobIds[i] = string(rune('a' + i))
	}
	fakeClock := clock.NewFakeClock(time.Now())
	v := New(newFakeStore(nil), WithClock(fakeClock))
	report := runVerify(ctx, v, fakeClock, jobIds, time.Second, time.Second)

	require.Equal(t, StatusTimeout, report.Status)
	assert.Len(t, report.FailedJobs, 12)
	assert.Equal(t, 10, bytes.Count(buf.Bytes(), []byte("Failed job: ")))
	assert.Contains(t, buf.String(), "and 2 more")
}
