package audio

import "math"

// ApplyGain scales 16-bit little-endian PCM in place by gain and clamps to
// the int16 range. A gain of 1 leaves the buffer untouched.
func ApplyGain(pcm []byte, gain float64) {
	if gain == 1 {
		return
	}
	if gain < 0 {
		gain = 0
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(pcm[i]) | int16(pcm[i+1])<<8)
		v := int32(math.Round(s * gain))
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		pcm[i] = byte(v)
		pcm[i+1] = byte(v >> 8)
	}
}

// Chunk splits pcm into slices of at most size bytes. Slices share the
// backing array of pcm.
func Chunk(pcm []byte, size int) [][]byte {
	if size <= 0 || len(pcm) == 0 {
		return nil
	}
	out := make([][]byte, 0, (len(pcm)+size-1)/size)
	for len(pcm) > size {
		out = append(out, pcm[:size])
		pcm = pcm[size:]
	}
	return append(out, pcm)
}
