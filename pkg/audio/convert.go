package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	}
	return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
}

// frameBytes is the size of one interleaved 16-bit sample frame.
func (f Format) frameBytes() int { return 2 * max(f.Channels, 1) }

// Converter reformats a stream of 16-bit little-endian PCM chunks, typically
// synthesizer output on its way to the speaker. Streaming synthesizers cut
// chunks at arbitrary byte offsets, so a trailing partial sample frame is
// held back and prepended to the next chunk. A Converter belongs to one
// stream and is not safe for concurrent use.
type Converter struct {
	from, to Format
	carry    []byte
}

// NewConverter returns a Converter from one format to another. Zero fields
// in to are taken from from.
func NewConverter(from, to Format) *Converter {
	if to.SampleRate <= 0 {
		to.SampleRate = from.SampleRate
	}
	if to.Channels <= 0 {
		to.Channels = from.Channels
	}
	return &Converter{from: from, to: to}
}

// Target returns the output format.
func (c *Converter) Target() Format { return c.to }

// Convert returns chunk in the target format. The result never aliases
// chunk, so callers may modify it in place. It is empty when chunk holds
// less than one complete sample frame.
func (c *Converter) Convert(chunk []byte) []byte {
	pcm := chunk
	if len(c.carry) > 0 {
		pcm = append(c.carry, chunk...)
		c.carry = nil
	}
	fb := c.from.frameBytes()
	if rem := len(pcm) % fb; rem != 0 {
		c.carry = append([]byte(nil), pcm[len(pcm)-rem:]...)
		pcm = pcm[:len(pcm)-rem]
	}
	if len(pcm) == 0 {
		return nil
	}

	samples := decode16(pcm)
	samples = resample(samples, max(c.from.Channels, 1), c.from.SampleRate, c.to.SampleRate)
	samples = remix(samples, max(c.from.Channels, 1), max(c.to.Channels, 1))
	return encode16(samples)
}

// Pending reports the number of bytes held back for the next chunk.
func (c *Converter) Pending() int { return len(c.carry) }

func decode16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

func encode16(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// resample converts interleaved samples between rates by linear
// interpolation. Invalid rates leave the input unchanged.
func resample(in []int16, channels, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return in
	}
	srcFrames := len(in) / channels
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]int16, dstFrames*channels)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		next := min(j+1, srcFrames-1)
		for ch := range channels {
			a := float64(in[j*channels+ch])
			b := float64(in[next*channels+ch])
			out[i*channels+ch] = int16(math.Round(a + (b-a)*frac))
		}
	}
	return out
}

// remix maps interleaved frames between channel counts. Downmixing to mono
// averages all channels; otherwise output channel k copies input channel
// k mod the input count.
func remix(in []int16, from, to int) []int16 {
	if from == to {
		return in
	}
	frames := len(in) / from
	out := make([]int16, frames*to)
	for f := range frames {
		src := in[f*from : (f+1)*from]
		if to == 1 {
			var sum int32
			for _, s := range src {
				sum += int32(s)
			}
			out[f] = int16(sum / int32(from))
			continue
		}
		for k := range to {
			out[f*to+k] = src[k%from]
		}
	}
	return out
}
