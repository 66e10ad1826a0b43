package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingCheck() CheckFunc {
	return func(context.Context) error { return nil }
}

func failingCheck(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type statusBody struct {
	Status string
	Checks map[string]string
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) statusBody {
	t.Helper()
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := statusBody{Checks: map[string]string{}}
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			var err error
			body.Status, err = d.Str()
			return err
		case "checks":
			return d.Obj(func(d *jx.Decoder, name string) error {
				msg, err := d.Str()
				body.Checks[name] = msg
				return err
			})
		default:
			return d.Skip()
		}
	}))
	return body
}

func probe(t *testing.T, h *Health, name string) *probeState {
	t.Helper()
	for _, s := range h.snapshot("") {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("probe %q not registered", name)
	return nil
}

func runTimes(s *probeState, n int) {
	for range n {
		s.runOnce(context.Background())
	}
}

func live(h *Health) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	return w
}

func ready(h *Health) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return w
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("NoChecks", func(t *testing.T) {
		w := live(New())
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decodeStatus(t, w).Status)
	})
	t.Run("AllPassing", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("a", time.Second, passingCheck())
		h.AddLivenessCheck("b", time.Second, passingCheck())
		runTimes(probe(t, h, "a"), 1)

		w := live(h)
		assert.Equal(t, http.StatusOK, w.Code)
	})
	t.Run("BelowThreshold", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("flaky", time.Second, failingCheck("temporary"))
		runTimes(probe(t, h, "flaky"), 2)

		assert.Equal(t, http.StatusOK, live(h).Code)
	})
	t.Run("Failing", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("goroutines", time.Second, failingCheck("too many"))
		runTimes(probe(t, h, "goroutines"), 3)

		w := live(h)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decodeStatus(t, w)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, map[string]string{"goroutines": "too many"}, body.Checks)
	})
	t.Run("IgnoresReadiness", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("store", time.Second, failingCheck("down"))
		runTimes(probe(t, h, "store"), 3)

		assert.Equal(t, http.StatusOK, live(h).Code)
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("NotReady", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("store", time.Second, passingCheck())

		w := ready(h)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, decodeStatus(t, w).Checks, "_readiness")
	})
	t.Run("Ready", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("store", time.Second, passingCheck())
		h.SetReady(true)

		assert.Equal(t, http.StatusOK, ready(h).Code)

		h.SetReady(false)
		assert.Equal(t, http.StatusServiceUnavailable, ready(h).Code)
	})
	t.Run("OneFailing", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("store", time.Second, passingCheck())
		h.AddReadinessCheck("redis", time.Second, failingCheck("connection refused"))
		h.SetReady(true)
		runTimes(probe(t, h, "redis"), 3)

		w := ready(h)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decodeStatus(t, w)
		assert.Equal(t, "connection refused", body.Checks["redis"])
		assert.NotContains(t, body.Checks, "store")
	})
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("store", time.Second, passingCheck())
	assert.False(t, h.IsReady())

	h.SetReady(true)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestProbeThresholds(t *testing.T) {
	failing := true
	h := New()
	h.Add(Probe{
		Name:             "flaky",
		Kind:             Readiness,
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Check: func(context.Context) error {
			if failing {
				return errors.New("down")
			}
			return nil
		},
	})
	s := probe(t, h, "flaky")
	assert.Equal(t, time.Second, s.Timeout)

	runTimes(s, 1)
	assert.True(t, s.healthy.Load())
	assert.Equal(t, "down", s.failure())
	runTimes(s, 1)
	assert.False(t, s.healthy.Load())

	failing = false
	runTimes(s, 1)
	assert.False(t, s.healthy.Load())
	runTimes(s, 1)
	assert.True(t, s.healthy.Load())
}

func TestProbeTimeout(t *testing.T) {
	h := New()
	h.Add(Probe{
		Name:             "slow",
		Kind:             Liveness,
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	s := probe(t, h, "slow")
	runTimes(s, 1)
	assert.False(t, s.healthy.Load())
	assert.Equal(t, context.DeadlineExceeded.Error(), s.failure())
}

func TestRun(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, passingCheck())
	h.AddReadinessCheck("ready", time.Second, failingCheck("err"))
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, 5*time.Millisecond) }()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				live(h)
				ready(h)
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")

	assert.NoError(t, PingCheck(pinger{})(context.Background()))
	assert.EqualError(t, PingCheck(pinger{err: errors.New("refused")})(context.Background()), "refused")
}
