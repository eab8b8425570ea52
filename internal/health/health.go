// Package health serves the liveness and readiness probes.
//
// /healthz answers 200 while the process runs. /readyz runs every [Checker]
// concurrently and answers 503 if any of them fails. A checker that returns
// an error wrapping [ErrDegraded] is reported but keeps the service ready:
// the assistant still works, for example on a fallback recognizer.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/digigov-voice/internal/resilience"
	"github.com/MrWong99/digigov-voice/pkg/audio"
)

// checkTimeout bounds each checker.
const checkTimeout = 5 * time.Second

// ErrDegraded marks a failure that does not make the service unready.
var ErrDegraded = errors.New("degraded")

// Status is the outcome of one check or of the whole probe.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFail     Status = "fail"
)

// Checker probes one dependency. Check must honour ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// CheckResult is one entry of the /readyz body.
type CheckResult struct {
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report is the /healthz and /readyz body.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed by [New].
type Handler struct {
	checkers []Checker
}

func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts /healthz and /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Check runs every checker and summarises the worst outcome. A slow checker
// only delays the report by its own timeout.
func (h *Handler) Check(ctx context.Context) Report {
	rep := Report{Status: StatusOK, Checks: make(map[string]CheckResult, len(h.checkers))}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			res := evaluate(c.Check(cctx))

			mu.Lock()
			defer mu.Unlock()
			rep.Checks[c.Name] = res
			if worse(res.Status, rep.Status) {
				rep.Status = res.Status
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func evaluate(err error) CheckResult {
	switch {
	case err == nil:
		return CheckResult{Status: StatusOK}
	case errors.Is(err, ErrDegraded):
		return CheckResult{Status: StatusDegraded, Detail: err.Error()}
	}
	return CheckResult{Status: StatusFail, Detail: err.Error()}
}

func worse(a, b Status) bool {
	rank := map[Status]int{StatusOK: 0, StatusDegraded: 1, StatusFail: 2}
	return rank[a] > rank[b]
}

// ── checkers ─────────────────────────────────────────────────────────────────

// Microphone probes the capture device. A device already held by the
// running assistant is healthy.
func Microphone(src audio.Source) Checker {
	return Checker{
		Name: "microphone",
		Check: func(ctx context.Context) error {
			if err := src.Probe(ctx); err != nil && !errors.Is(err, audio.ErrDeviceBusy) {
				return err
			}
			return nil
		},
	}
}

// BreakerReporter is implemented by [resilience.STTFallback] and
// [resilience.TTSFallback].
type BreakerReporter interface {
	States() []resilience.EntryState
}

// Breakers reports the providers of one kind. Some open breakers degrade the
// service; all of them open fails it.
func Breakers(name string, r BreakerReporter) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			states := r.States()
			var open []string
			for _, s := range states {
				if s.State == resilience.StateOpen {
					open = append(open, s.Name)
				}
			}
			switch {
			case len(open) == 0:
				return nil
			case len(open) == len(states):
				return fmt.Errorf("circuit open for %s", strings.Join(open, ", "))
			}
			return fmt.Errorf("%w: circuit open for %s", ErrDegraded, strings.Join(open, ", "))
		},
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
