// Package wakeword detects the activation phrase in final transcripts.
//
// Matching is substring based over normalised text: the transcript matches
// when it contains the wake word or one of its variants. Variants cover the
// space-stripped form, "hey" spoken as "hi" or "hay", and a list of known
// misrecognitions of the phrase. An optional fallback (antzucaro/matchr)
// accepts near misses: windows scoring above a configurable Jaro-Winkler
// threshold, or sounding alike under Double Metaphone with a lower score.
//
// Accepted detections are debounced: a second hit within the debounce window
// of the previous accepted one is dropped, so a phrase split over several
// result batches fires once.
package wakeword

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/digigov-voice/internal/observe"
)

// DefaultDebounce is the minimum gap between two accepted detections.
const DefaultDebounce = 2 * time.Second

// defaultMisrecognitions lists known speech-to-text errors per normalised wake
// word.
var defaultMisrecognitions = map[string][]string{
	"hey digigov": {"hey digi gov", "a digi gov", "hey digital gov", "hey didi gov"},
}

// greetingSwaps are the spellings of "hey" that recognizers commonly produce.
var greetingSwaps = []string{"hi", "hay"}

// Option is a functional option for [New].
type Option func(*Detector)

// WithMisrecognitions replaces the built-in list of known misrecognitions.
func WithMisrecognitions(phrases ...string) Option {
	return func(d *Detector) {
		d.misrecognitions = phrases
		d.customMisrecognitions = true
	}
}

// WithDebounce overrides [DefaultDebounce].
func WithDebounce(window time.Duration) Option {
	return func(d *Detector) { d.debounce = window }
}

// WithFuzzyThreshold enables the Jaro-Winkler fallback. Transcript windows
// scoring at least threshold against the wake word are accepted. Zero, the
// default, disables it. Values below 0.95 admit near misses such as
// "hey digi gold".
func WithFuzzyThreshold(threshold float64) Option {
	return func(d *Detector) { d.fuzzyThreshold = threshold }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithMetrics counts accepted and debounced detections.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// Detector matches final transcripts against a wake word. It is safe for
// concurrent use.
type Detector struct {
	wakeWord              string
	misrecognitions       []string
	customMisrecognitions bool
	variants              []string
	debounce              time.Duration
	fuzzyThreshold        float64
	now                   func() time.Time
	onDetected            func()
	metrics               *observe.Metrics

	mu      sync.Mutex
	last    time.Time
	hasLast bool
}

// New creates a Detector for wakeWord that calls onDetected for every
// accepted detection. onDetected runs on the caller's goroutine.
func New(wakeWord string, onDetected func(), opts ...Option) *Detector {
	d := &Detector{
		wakeWord:   Normalize(wakeWord),
		debounce:   DefaultDebounce,
		now:        time.Now,
		onDetected: onDetected,
	}
	for _, o := range opts {
		o(d)
	}
	if !d.customMisrecognitions {
		d.misrecognitions = defaultMisrecognitions[d.wakeWord]
	}
	d.variants = buildVariants(d.wakeWord, d.misrecognitions)
	return d
}

// NewHandler returns a transcript callback that feeds a new Detector. It has
// the shape of a recognizer result callback.
func NewHandler(wakeWord string, onDetected func(), opts ...Option) func(transcript string, isFinal bool) {
	return New(wakeWord, onDetected, opts...).Handle
}

// WakeWord returns the normalised wake word.
func (d *Detector) WakeWord() string { return d.wakeWord }

// Variants returns every phrase the detector searches for, wake word first.
func (d *Detector) Variants() []string {
	out := make([]string, len(d.variants))
	copy(out, d.variants)
	return out
}

// Handle inspects a transcript. Interim transcripts are ignored.
func (d *Detector) Handle(transcript string, isFinal bool) {
	if !isFinal || !d.Matches(transcript) {
		return
	}

	d.mu.Lock()
	now := d.now()
	if d.hasLast && now.Sub(d.last) < d.debounce {
		d.mu.Unlock()
		d.metrics.RecordWakeDetection(context.Background(), true)
		return
	}
	d.last = now
	d.hasLast = true
	d.mu.Unlock()

	d.metrics.RecordWakeDetection(context.Background(), false)
	if d.onDetected != nil {
		d.onDetected()
	}
}

// Reset forgets the last accepted detection so the next match fires
// immediately.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.hasLast = false
	d.mu.Unlock()
}

// Matches reports whether transcript contains the wake word or a variant,
// ignoring the debounce window.
func (d *Detector) Matches(transcript string) bool {
	text := Normalize(transcript)
	if text == "" || d.wakeWord == "" {
		return false
	}
	for _, v := range d.variants {
		if strings.Contains(text, v) {
			return true
		}
	}
	if d.fuzzyThreshold > 0 {
		return d.fuzzyMatch(text)
	}
	return false
}

// fuzzyMatch compares space-stripped windows of n and n+1 tokens, where n is
// the wake word's token count, against the space-stripped wake word. A
// window that shares a Double Metaphone code with the wake word only needs
// [phoneticThreshold].
func (d *Detector) fuzzyMatch(text string) bool {
	target := strings.ReplaceAll(d.wakeWord, " ", "")
	n := len(strings.Fields(d.wakeWord))
	tokens := strings.Fields(text)
	for size := n; size <= n+1; size++ {
		for i := 0; i+size <= len(tokens); i++ {
			window := strings.Join(tokens[i:i+size], "")
			score := matchr.JaroWinkler(window, target, false)
			if score >= d.fuzzyThreshold {
				return true
			}
			if score >= min(phoneticThreshold, d.fuzzyThreshold) && soundsLike(window, target) {
				return true
			}
		}
	}
	return false
}

// Normalize lowercases s, replaces punctuation with spaces and collapses
// whitespace.
func Normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func buildVariants(wake string, misrecognitions []string) []string {
	if wake == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	bases := []string{wake}
	for _, m := range misrecognitions {
		bases = append(bases, Normalize(m))
	}
	for _, b := range bases {
		add(b)
		add(strings.ReplaceAll(b, " ", ""))
		if rest, ok := strings.CutPrefix(b, "hey "); ok {
			for _, g := range greetingSwaps {
				add(g + " " + rest)
			}
		}
	}
	return out
}
