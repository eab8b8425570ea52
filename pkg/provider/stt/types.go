package stt

import "time"

// Transcript is one recognition result. Interim results may be revised by
// later ones; a final result for the same audio is not.
type Transcript struct {
	Text    string
	IsFinal bool

	// Confidence is in [0, 1], or 0 when the recognizer does not score.
	Confidence float64

	// Duration of the recognised audio, 0 if unknown.
	Duration time.Duration
}

// KeywordBoost biases recognition towards Keyword, such as the wake word or a
// portal-specific term. Boost uses the recognizer's own scale.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}
