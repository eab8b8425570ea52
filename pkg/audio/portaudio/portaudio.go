// Package portaudio implements [audio.Source] and [audio.Sink] on top of the
// host's default PortAudio devices.
//
// PortAudio is initialised once per Device and terminated by Close. The
// microphone can be held by a single capture at a time.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/digigov-voice/pkg/audio"
	pa "github.com/gordonklaus/portaudio"
)

const (
	defaultFramesPerBuffer = 320 // 20 ms at 16 kHz
	playbackBuffer         = 1024
)

// Option is a functional option for configuring a Device.
type Option func(*Device)

// WithFramesPerBuffer sets the capture buffer size in samples.
func WithFramesPerBuffer(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.framesPerBuffer = n
		}
	}
}

// Device wraps the default PortAudio input and output devices.
type Device struct {
	framesPerBuffer int

	mu      sync.Mutex
	capture *capture
	closed  bool
}

// New initialises PortAudio and returns a Device.
func New(opts ...Option) (*Device, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	d := &Device{framesPerBuffer: defaultFramesPerBuffer}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

var (
	_ audio.Source = (*Device)(nil)
	_ audio.Sink   = (*Device)(nil)
)

// Probe opens the default input stream and closes it again.
func (d *Device) Probe(_ context.Context) error {
	d.mu.Lock()
	busy := d.capture != nil
	d.mu.Unlock()
	if busy {
		// An active capture proves access.
		return nil
	}

	buf := make([]int16, d.framesPerBuffer)
	stream, err := pa.OpenDefaultStream(1, 0, 16000, len(buf), buf)
	if err != nil {
		return mapOpenError(err)
	}
	return stream.Close()
}

// Open starts capturing mono 16-bit PCM at f.SampleRate.
func (d *Device) Open(_ context.Context, f audio.Format) (audio.Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("portaudio: device closed")
	}
	if d.capture != nil {
		return nil, audio.ErrDeviceBusy
	}

	if f.Channels == 0 {
		f.Channels = 1
	}
	buf := make([]int16, d.framesPerBuffer*f.Channels)
	stream, err := pa.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), d.framesPerBuffer, buf)
	if err != nil {
		return nil, mapOpenError(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start input: %w", err)
	}

	c := &capture{
		dev:    d,
		stream: stream,
		buf:    buf,
		format: f,
		frames: make(chan audio.AudioFrame, 32),
		done:   make(chan struct{}),
	}
	d.capture = c
	go c.loop()

	slog.Debug("portaudio: capture started", "sample_rate", f.SampleRate, "channels", f.Channels)
	return c, nil
}

// Play renders pcm on the default output device.
func (d *Device) Play(ctx context.Context, pcm []byte, f audio.Format) error {
	if f.Channels == 0 {
		f.Channels = 1
	}
	out := make([]int16, playbackBuffer*f.Channels)
	stream, err := pa.OpenDefaultStream(0, f.Channels, float64(f.SampleRate), playbackBuffer, out)
	if err != nil {
		return fmt.Errorf("portaudio: open output: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output: %w", err)
	}
	defer stream.Stop()

	samples := len(pcm) / 2
	for pos := 0; pos < samples; pos += len(out) {
		if err := ctx.Err(); err != nil {
			stream.Abort()
			return err
		}
		for i := range out {
			j := pos + i
			if j < samples {
				out[i] = int16(pcm[j*2]) | int16(pcm[j*2+1])<<8
			} else {
				out[i] = 0
			}
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

// Close stops any capture and terminates PortAudio.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	c := d.capture
	d.mu.Unlock()

	if c != nil {
		c.Close()
	}
	if err := pa.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

func (d *Device) release(c *capture) {
	d.mu.Lock()
	if d.capture == c {
		d.capture = nil
	}
	d.mu.Unlock()
}

// mapOpenError translates PortAudio open failures into audio sentinels.
// Hosts that deny microphone access report the device as unavailable.
func mapOpenError(err error) error {
	var paErr pa.Error
	if errors.As(err, &paErr) {
		switch paErr {
		case pa.DeviceUnavailable:
			return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
		case pa.InvalidDevice:
			return fmt.Errorf("%w: %v", audio.ErrNoDevice, err)
		}
	}
	return fmt.Errorf("portaudio: open input: %w", err)
}

// capture implements audio.Capture.
type capture struct {
	dev    *Device
	stream *pa.Stream
	buf    []int16
	format audio.Format
	frames chan audio.AudioFrame

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func (c *capture) loop() {
	defer close(c.frames)
	start := time.Now()
	for {
		select {
		case <-c.done:
			return
		default:
		}
		if err := c.stream.Read(); err != nil {
			if errors.Is(err, pa.InputOverflowed) {
				continue
			}
			select {
			case <-c.done:
			default:
				c.mu.Lock()
				c.err = fmt.Errorf("portaudio: read: %w", err)
				c.mu.Unlock()
				slog.Warn("portaudio: capture failed", "err", err)
			}
			return
		}
		data := make([]byte, len(c.buf)*2)
		for i, s := range c.buf {
			data[i*2] = byte(s)
			data[i*2+1] = byte(s >> 8)
		}
		frame := audio.AudioFrame{
			Data:       data,
			SampleRate: c.format.SampleRate,
			Channels:   c.format.Channels,
			Timestamp:  time.Since(start),
		}
		select {
		case c.frames <- frame:
		case <-c.done:
			return
		default:
			// Consumer is behind; drop the frame rather than stall the device.
		}
	}
}

func (c *capture) Frames() <-chan audio.AudioFrame { return c.frames }

func (c *capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *capture) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if stopErr := c.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("portaudio: stop input: %w", stopErr)
		}
		c.stream.Close()
		c.dev.release(c)
	})
	return err
}
