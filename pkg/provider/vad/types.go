package vad

// VADEvent is the detector's verdict on one audio frame.
type VADEvent struct {
	Type VADEventType

	// Probability is the speech probability in [0, 1]. Binary detectors
	// report 0 or 1.
	Probability float64
}

// VADEventType enumerates the per-frame speech states.
type VADEventType int

const (
	// VADSpeechStart is the first frame of an utterance.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue is a frame inside an utterance.
	VADSpeechContinue

	// VADSpeechEnd is the first silent frame after an utterance.
	VADSpeechEnd

	// VADSilence is a frame outside any utterance.
	VADSilence
)

// IsSpeech reports whether the frame belongs to an utterance. The recognizer
// uses it to decide whether a frame counts as heard speech.
func (t VADEventType) IsSpeech() bool {
	return t == VADSpeechStart || t == VADSpeechContinue
}

func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	}
	return "unknown"
}
