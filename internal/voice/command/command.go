// Package command implements the voice command grammar: an ordered list of
// regular expression patterns bound to actions.
//
// Matching is pure: [Registry.Match] scans the commands in registration order
// against the lowercased, trimmed transcript and returns the first hit. There
// is no scoring; overlapping patterns are resolved by position alone.
// Execution is effectful: [Registry.Execute] re-runs the winning pattern to
// capture parameters, invokes the action and converts every failure,
// including panics, into a [Result]. It never returns an error.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/digigov-voice/internal/observe"
	"github.com/MrWong99/digigov-voice/internal/voice/form"
)

const (
	// DefaultHelpPrompt is spoken when no command matches.
	DefaultHelpPrompt = `Sorry, I didn't catch a command. Try "go to dashboard", "fill my name as" followed by your name, or say "help".`

	// DefaultSuggestionThreshold is the Jaro-Winkler score an example must
	// reach to be offered as "did you mean".
	DefaultSuggestionThreshold = 0.85

	genericFailure = "Sorry, something went wrong while doing that."
)

// ErrInvalidCommand is returned by Register for commands missing a name,
// pattern or action.
var ErrInvalidCommand = errors.New("command: invalid command")

// Category groups commands for help output and metrics.
type Category string

const (
	CategoryNavigation Category = "navigation"
	CategoryForm       Category = "form"
	CategoryAction     Category = "action"
	CategoryControl    Category = "control"
)

// Result is the outcome of executing a transcript.
type Result struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ShouldSpeak bool   `json:"should_speak"`
}

// Context is passed to an [Action].
type Context struct {
	// Transcript is the trimmed transcript as recognised.
	Transcript string

	// Navigate moves the host application to path. Never nil.
	Navigate func(path string)

	// CurrentPath is the host's location when the command was spoken.
	CurrentPath string

	// Document is the page the user is looking at. May be nil.
	Document form.Document

	// Matches is the submatch slice of the command's pattern.
	Matches []string
}

// Arg returns capture group i trimmed, or "" if absent.
func (c Context) Arg(i int) string {
	if i < 0 || i >= len(c.Matches) {
		return ""
	}
	return strings.TrimSpace(c.Matches[i])
}

// Action performs a command. A returned error becomes a failure [Result].
type Action func(ctx context.Context, c Context) (Result, error)

// Command binds a pattern to an action.
type Command struct {
	Name        string
	Pattern     *regexp.Regexp
	Action      Action
	Description string
	Examples    []string
	Category    Category
}

// Env carries the host state for one execution.
type Env struct {
	Navigate    func(path string)
	CurrentPath string
	Document    form.Document
}

// Option is a functional option for [NewRegistry].
type Option func(*Registry)

// WithHelpPrompt overrides [DefaultHelpPrompt].
func WithHelpPrompt(prompt string) Option {
	return func(r *Registry) { r.helpPrompt = prompt }
}

// WithSuggestionThreshold overrides [DefaultSuggestionThreshold]. Zero or a
// negative value disables suggestions.
func WithSuggestionThreshold(threshold float64) Option {
	return func(r *Registry) { r.suggestThreshold = threshold }
}

// WithMetrics records command outcomes and latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// Registry is the ordered command collection. It is safe for concurrent use.
type Registry struct {
	helpPrompt       string
	suggestThreshold float64
	metrics          *observe.Metrics

	mu       sync.RWMutex
	commands []Command
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		helpPrompt:       DefaultHelpPrompt,
		suggestThreshold: DefaultSuggestionThreshold,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func validate(cmds []Command) error {
	var errs []error
	for i, c := range cmds {
		switch {
		case c.Name == "":
			errs = append(errs, fmt.Errorf("%w: command %d has no name", ErrInvalidCommand, i))
		case c.Pattern == nil:
			errs = append(errs, fmt.Errorf("%w: %s has no pattern", ErrInvalidCommand, c.Name))
		case c.Action == nil:
			errs = append(errs, fmt.Errorf("%w: %s has no action", ErrInvalidCommand, c.Name))
		}
	}
	return errors.Join(errs...)
}

// Register appends cmds after the existing commands. Nothing is registered
// if any command is invalid.
func (r *Registry) Register(cmds ...Command) error {
	if err := validate(cmds); err != nil {
		return err
	}
	r.mu.Lock()
	r.commands = append(r.commands, cmds...)
	r.mu.Unlock()
	return nil
}

// Replace swaps the whole grammar atomically.
func (r *Registry) Replace(cmds []Command) error {
	if err := validate(cmds); err != nil {
		return err
	}
	r.mu.Lock()
	r.commands = slices.Clone(cmds)
	r.mu.Unlock()
	return nil
}

// Commands returns the registered commands in priority order.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.commands)
}

// Normalize lowercases and trims a transcript for matching. Trailing
// sentence punctuation added by recognisers is dropped.
func Normalize(transcript string) string {
	return strings.ToLower(clean(transcript))
}

func clean(transcript string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(transcript), ".!?,"))
}

// Match returns the first command whose pattern matches transcript.
func (r *Registry) Match(transcript string) (Command, bool) {
	text := Normalize(transcript)
	if text == "" {
		return Command{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.commands {
		if c.Pattern.MatchString(text) {
			return c, true
		}
	}
	return Command{}, false
}

// Execute runs the command matching transcript. It never panics and reports
// every failure through the returned Result.
func (r *Registry) Execute(ctx context.Context, transcript string, env Env) Result {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "command.execute")
	defer span.End()

	cmd, ok := r.Match(transcript)
	if !ok {
		res := Result{Success: false, Message: r.unmatchedMessage(transcript), ShouldSpeak: true}
		span.SetAttributes(attribute.String("command.status", "unmatched"))
		r.metrics.RecordCommand(ctx, "none", "unmatched", time.Since(start).Seconds())
		slog.Info("command: no match", "transcript", transcript)
		return res
	}

	trimmed := clean(transcript)
	matches := cmd.Pattern.FindStringSubmatch(trimmed)
	if matches == nil {
		matches = cmd.Pattern.FindStringSubmatch(Normalize(transcript))
	}
	navigate := env.Navigate
	if navigate == nil {
		navigate = func(string) {}
	}

	res := r.run(ctx, cmd, Context{
		Transcript:  trimmed,
		Navigate:    navigate,
		CurrentPath: env.CurrentPath,
		Document:    env.Document,
		Matches:     matches,
	})

	status := "success"
	if !res.Success {
		status = "failure"
		span.SetStatus(codes.Error, res.Message)
	}
	span.SetAttributes(
		attribute.String("command.name", cmd.Name),
		attribute.String("command.status", status),
	)
	r.metrics.RecordCommand(ctx, string(cmd.Category), status, time.Since(start).Seconds())
	observe.Logger(ctx).Info("command: executed",
		"command", cmd.Name,
		"success", res.Success,
		"message", res.Message)
	return res
}

func (r *Registry) run(ctx context.Context, cmd Command, c Context) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("command: action panicked", "command", cmd.Name, "panic", p)
			res = Result{Success: false, Message: genericFailure, ShouldSpeak: true}
		}
	}()

	out, err := cmd.Action(ctx, c)
	if err == nil {
		return out
	}

	var notFound *form.FieldNotFoundError
	if errors.As(err, &notFound) {
		return Result{
			Success:     false,
			Message:     fmt.Sprintf("I couldn't find the %s field on this page.", notFound.Field),
			ShouldSpeak: true,
		}
	}
	slog.Warn("command: action failed", "command", cmd.Name, "err", err)
	return Result{Success: false, Message: genericFailure, ShouldSpeak: true}
}

// Suggest returns the registered example closest to transcript when it
// scores at least the suggestion threshold.
func (r *Registry) Suggest(transcript string) (string, bool) {
	text := Normalize(transcript)
	if text == "" || r.suggestThreshold <= 0 {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best string
	var bestScore float64
	for _, c := range r.commands {
		for _, ex := range c.Examples {
			if s := matchr.JaroWinkler(text, strings.ToLower(ex), false); s > bestScore {
				best, bestScore = ex, s
			}
		}
	}
	if bestScore < r.suggestThreshold {
		return "", false
	}
	return best, true
}

func (r *Registry) unmatchedMessage(transcript string) string {
	if ex, ok := r.Suggest(transcript); ok {
		return fmt.Sprintf("%s Did you mean %q?", r.helpPrompt, ex)
	}
	return r.helpPrompt
}
