// Package health serves liveness and readiness probes.
//
// Every probe runs periodically. A probe turns unhealthy after
// FailureThreshold consecutive failures and healthy again after
// SuccessThreshold consecutive successes.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind tells which endpoint a probe affects.
type Kind string

const (
	Liveness  Kind = "liveness"
	Readiness Kind = "readiness"
)

// Probe describes a registered check.
type Probe struct {
	Name             string
	Kind             Kind
	Timeout          time.Duration
	FailureThreshold int
	SuccessThreshold int
	Check            CheckFunc
}

type probeState struct {
	Probe

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Touched only by the goroutine running the probe.
	fails     int
	successes int
}

// observe folds one check result into the state and reports whether the
// health flag flipped.
func (s *probeState) observe(err error) (changed bool) {
	was := s.healthy.Load()
	if err != nil {
		msg := err.Error()
		s.lastErr.Store(&msg)
		s.successes = 0
		s.fails++
		if s.fails >= s.FailureThreshold {
			s.healthy.Store(false)
		}
	} else {
		s.lastErr.Store(nil)
		s.fails = 0
		s.successes++
		if s.successes >= s.SuccessThreshold {
			s.healthy.Store(true)
		}
	}
	return was != s.healthy.Load()
}

func (s *probeState) runOnce(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	err := s.Check(checkCtx)
	if s.observe(err) {
		lg := zctx.From(ctx).With(zap.String("probe", s.Name), zap.String("kind", string(s.Kind)))
		if err != nil {
			lg.Warn("Probe unhealthy", zap.Error(err))
		} else {
			lg.Info("Probe recovered")
		}
	}
}

func (s *probeState) failure() string {
	if msg := s.lastErr.Load(); msg != nil {
		return *msg
	}
	return "check is unhealthy"
}

// Health holds the probes of a service. It starts not ready.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probeState
}

// New creates an empty Health.
func New() *Health {
	return &Health{}
}

// Add registers p. Zero thresholds default to 3 failures and 1 success.
func (h *Health) Add(p Probe) {
	if p.FailureThreshold < 1 {
		p.FailureThreshold = 3
	}
	if p.SuccessThreshold < 1 {
		p.SuccessThreshold = 1
	}
	if p.Timeout <= 0 {
		p.Timeout = time.Second
	}
	s := &probeState{Probe: p}
	s.healthy.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, s)
	h.mu.Unlock()
}

// AddLivenessCheck registers a liveness probe with default thresholds.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.Add(Probe{Name: name, Kind: Liveness, Timeout: timeout, Check: check})
}

// AddReadinessCheck registers a readiness probe with default thresholds.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.Add(Probe{Name: name, Kind: Readiness, Timeout: timeout, Check: check})
}

// Run executes every probe each interval until ctx is done.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range h.snapshot("") {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				s.runOnce(ctx)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

// SetReady marks the service ready or draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and all readiness
// probes are healthy.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(failures(h.snapshot(Readiness))) == 0
}

func (h *Health) snapshot(kind Kind) []*probeState {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*probeState, 0, len(h.probes))
	for _, s := range h.probes {
		if kind == "" || s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func failures(probes []*probeState) map[string]string {
	out := make(map[string]string)
	for _, s := range probes {
		if !s.healthy.Load() {
			out[s.Name] = s.failure()
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(h.snapshot(Liveness)))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(Readiness))
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeStatus(w, failed)
}

// writeStatus responds {"status":"ok"} or 503 with
// {"status":"unhealthy","checks":{name: error}}.
func writeStatus(w http.ResponseWriter, failed map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.ObjStart()
	e.FieldStart("status")
	if len(failed) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")

		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)

		e.FieldStart("checks")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failed[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
