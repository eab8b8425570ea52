package tts

// Voice describes a synthesis voice.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Lang is the BCP-47 language tag the voice is tuned for (e.g., "en-US").
	Lang string

	// Default marks the provider's default voice.
	Default bool
}

// Request is a single synthesis request.
type Request struct {
	// Text is the utterance to speak.
	Text string

	// Voice is the voice ID. Empty selects the provider default.
	Voice string

	// Lang is the BCP-47 language tag of Text. Providers that infer the
	// language from the text may ignore it.
	Lang string

	// Rate is the speaking rate multiplier (1 = normal). Zero means default.
	Rate float64

	// Pitch is the pitch multiplier (1 = normal). Providers without pitch
	// control ignore it.
	Pitch float64
}
