package wakeword

import (
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 26, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMatches(t *testing.T) {
	t.Parallel()

	d := New("Hey DigiGov", nil)

	tests := []struct {
		transcript string
		want       bool
	}{
		{"hey digigov", true},
		{"heydigigov", true},
		{"hi digigov", true},
		{"hay digigov", true},
		{"hey digi gov", true},
		{"a digi gov", true},
		{"Hey, DigiGov!", true},
		{"okay hey digigov open the dashboard", true},
		{"hey digital gov", true},
		{"hey didi gov", true},
		{"hey digi gold", false},
		{"hey google", false},
		{"digigov", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.transcript, func(t *testing.T) {
			t.Parallel()
			if got := d.Matches(tc.transcript); got != tc.want {
				t.Errorf("Matches(%q) = %v, want %v", tc.transcript, got, tc.want)
			}
		})
	}
}

func TestHandle_IgnoresInterim(t *testing.T) {
	t.Parallel()

	var hits int
	h := NewHandler("hey digigov", func() { hits++ })
	h("hey digigov", false)
	if hits != 0 {
		t.Fatalf("interim transcript triggered %d detections", hits)
	}
	h("hey digigov", true)
	if hits != 1 {
		t.Fatalf("final transcript triggered %d detections, want 1", hits)
	}
}

func TestHandle_Debounce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		gap  time.Duration
		want int
	}{
		{"within window", 1999 * time.Millisecond, 1},
		{"just outside window", 2100 * time.Millisecond, 2},
		{"same instant", 0, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			clock := newFakeClock()
			var hits int
			d := New("hey digigov", func() { hits++ }, WithClock(clock.Now))

			d.Handle("hey digigov", true)
			clock.Advance(tc.gap)
			d.Handle("hey digi gov", true)

			if hits != tc.want {
				t.Errorf("hits = %d, want %d", hits, tc.want)
			}
		})
	}
}

func TestHandle_SuppressedHitsDoNotExtendWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var hits int
	d := New("hey digigov", func() { hits++ }, WithClock(clock.Now))

	d.Handle("hey digigov", true)
	clock.Advance(1500 * time.Millisecond)
	d.Handle("hey digigov", true) // suppressed
	clock.Advance(600 * time.Millisecond)
	d.Handle("hey digigov", true) // 2.1s after the accepted hit

	if hits != 2 {
		t.Fatalf("hits = %d, want 2", hits)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	var hits int
	d := New("hey digigov", func() { hits++ }, WithClock(newFakeClock().Now))
	d.Handle("hey digigov", true)
	d.Reset()
	d.Handle("hey digigov", true)
	if hits != 2 {
		t.Fatalf("hits = %d, want 2 after Reset", hits)
	}
}

func TestCustomMisrecognitions(t *testing.T) {
	t.Parallel()

	d := New("hello portal", nil, WithMisrecognitions("yellow portal"))
	if !d.Matches("yellow portal please") {
		t.Error("custom misrecognition not matched")
	}
	if d.Matches("hey digi gov") {
		t.Error("defaults for another wake word leaked in")
	}
	if !d.Matches("helloportal") {
		t.Error("space-stripped form not matched")
	}
}

func TestVariants(t *testing.T) {
	t.Parallel()

	v := New("hey digigov", nil).Variants()
	if v[0] != "hey digigov" {
		t.Errorf("first variant = %q, want the wake word", v[0])
	}
	seen := make(map[string]bool)
	for _, s := range v {
		if seen[s] {
			t.Errorf("duplicate variant %q", s)
		}
		seen[s] = true
	}
	for _, want := range []string{"heydigigov", "hi digigov", "hay digigov", "a digi gov"} {
		if !seen[want] {
			t.Errorf("missing variant %q", want)
		}
	}
}

func TestFuzzyThreshold(t *testing.T) {
	t.Parallel()

	strict := New("hey digigov", nil)
	fuzzy := New("hey digigov", nil, WithFuzzyThreshold(0.9))

	if strict.Matches("hey dijigov") {
		t.Error("strict detector matched a near miss")
	}
	if !fuzzy.Matches("hey dijigov") {
		t.Error("fuzzy detector missed a near miss")
	}
	if fuzzy.Matches("please open the dashboard") {
		t.Error("fuzzy detector matched unrelated text")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  Hey,   DigiGov! ": "hey digigov",
		"GO-TO dashboard":    "go to dashboard",
		"":                   "",
		"...":                "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestDebounceProperty checks that, for any sequence of gaps between matching
// transcripts, the detector fires exactly when a reference model says the
// debounce window has passed since the last accepted hit.
func TestDebounceProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		gaps := rapid.SliceOfN(rapid.IntRange(0, 5000), 1, 30).Draw(rt, "gapsMs")

		clock := newFakeClock()
		var hits int
		d := New("hey digigov", func() { hits++ }, WithClock(clock.Now))

		want := 0
		var last time.Time
		for i, g := range gaps {
			clock.Advance(time.Duration(g) * time.Millisecond)
			now := clock.Now()
			if i == 0 || now.Sub(last) >= DefaultDebounce {
				want++
				last = now
			}
			d.Handle("hey digigov", true)
		}
		if hits != want {
			rt.Fatalf("hits = %d, want %d for gaps %v", hits, want, gaps)
		}
	})
}

func TestSoundsLike(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want bool
	}{
		{"hey digigov", "hey digigov", true},
		{"hey digi gov", "heydigigov", true},
		{"please open", "heydigigov", false},
		{"", "heydigigov", false},
	}
	for _, tt := range tests {
		if got := soundsLike(tt.a, tt.b); got != tt.want {
			t.Errorf("soundsLike(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSoundsLikeSymmetric(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		a := rapid.StringMatching(`[a-z ]{0,12}`).Draw(t, "a")
		b := rapid.StringMatching(`[a-z ]{0,12}`).Draw(t, "b")
		if soundsLike(a, b) != soundsLike(b, a) {
			t.Fatalf("soundsLike(%q, %q) is not symmetric", a, b)
		}
	})
}
