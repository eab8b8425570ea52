package audio

// Drain discards values from ch until it is closed. Playback uses it so a
// synthesizer goroutine is never left blocked on a send after the listener
// stopped reading.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
