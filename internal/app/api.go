package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/MrWong99/digigov-voice/internal/observe"
	"github.com/MrWong99/digigov-voice/internal/voice/assistant"
	"github.com/MrWong99/digigov-voice/internal/voice/command"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// SimulateRequest is the body of POST /api/simulate.
type SimulateRequest struct {
	Text string `json:"text"`
}

// CommandInfo describes one registered command on GET /api/commands.
type CommandInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Category    command.Category `json:"category,omitempty"`
	Examples    []string         `json:"examples,omitempty"`
}

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Error string `json:"error"`
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.Handler(a.promReg))
	mux.Handle("GET /ws", a.hub)
	mux.HandleFunc("GET /api/state", a.handleState)
	mux.HandleFunc("POST /api/toggle", a.mutating(a.handleToggle))
	mux.HandleFunc("POST /api/simulate", a.mutating(a.handleSimulate))
	mux.HandleFunc("GET /api/commands", a.handleCommands)
	return mux
}

// mutating guards a state-changing endpoint against cross-site requests. The
// request must declare a JSON body, which a plain HTML form or a CORS
// simple request cannot, and a browser Origin must be the serving host or
// match server.allowed_origins, the same rule the /ws upgrade applies.
func (a *App) mutating(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checkOrigin(r, a.cfg.Server.AllowedOrigins); err != nil {
			observe.Logger(r.Context()).Warn("app: rejected cross-origin request", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusForbidden, err)
			return
		}
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, errors.New("content type must be application/json"))
			return
		}
		next(w, r)
	}
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients), same-host origins, and hosts matching one of patterns.
func checkOrigin(r *http.Request, patterns []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid origin %q", origin)
	}
	if strings.EqualFold(u.Host, r.Host) {
		return nil
	}
	host := strings.ToLower(u.Host)
	for _, p := range patterns {
		if ok, _ := path.Match(strings.ToLower(p), host); ok {
			return nil
		}
	}
	return fmt.Errorf("origin %q is not allowed", origin)
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.assistant.Snapshot())
}

func (a *App) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := a.assistant.Toggle(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a.assistant.Snapshot())
}

func (a *App) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	log := observe.Logger(r.Context())
	res, err := a.assistant.Simulate(r.Context(), req.Text)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	log.Debug("app: simulated command", "text", req.Text, "success", res.Success)
	writeJSON(w, http.StatusOK, res)
}

func (a *App) handleCommands(w http.ResponseWriter, _ *http.Request) {
	cmds := a.assistant.Registry().Commands()
	out := make([]CommandInfo, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, CommandInfo{
			Name:        c.Name,
			Description: c.Description,
			Category:    c.Category,
			Examples:    c.Examples,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, assistant.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, assistant.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("app: encode response", "err", err)
	}
}
