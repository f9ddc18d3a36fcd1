// Package ffmpegsource implements ports.FrameSource by piping raw RGB24
// frames from the ffmpeg CLI. Decoding runs as a concurrent producer
// feeding a bounded queue, so the analysis side only ever consumes frames
// in order; frame buffers come from a pool, bounding peak memory to a small
// multiple of one frame regardless of video length.
package ffmpegsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/palthedog/recmari/pkg/pipeline"
	"github.com/palthedog/recmari/pkg/ports"
)

// Options configures sampling and tooling for a Source.
type Options struct {
	// Stride forwards only every Nth decoded frame (1 = every frame).
	Stride int
	// StartFrame is the first decoded frame to consider.
	StartFrame int
	// MaxFrames caps the number of forwarded frames (0 = no limit).
	MaxFrames int
	// Prefetch is the bounded queue depth between the decode process and
	// the consumer (default 4).
	Prefetch int
	// FFmpegPath and FFprobePath override the binaries found on PATH.
	FFmpegPath  string
	FFprobePath string
}

// Source decodes a video file into sampled frames.
type Source struct {
	info   ports.SourceInfo
	opts   Options
	logger ports.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser

	frames chan *pipeline.Frame
	done   chan struct{}
	pool   sync.Pool

	mu    sync.Mutex
	cause error

	closeOnce sync.Once
}

// Open probes the video, spawns the decode process and starts the producer
// goroutine.
func Open(path string, opts Options, logger ports.Logger) (*Source, error) {
	if opts.Stride < 1 {
		opts.Stride = 1
	}
	if opts.Prefetch < 1 {
		opts.Prefetch = 4
	}
	ffmpeg := opts.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	info, err := Probe(path, opts.FFprobePath)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: video %s has no dimensions", pipeline.ErrDecodeFailure, path)
	}

	cmd := exec.Command(ffmpeg,
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-v", "error",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn ffmpeg (is it installed?): %w", err)
	}

	frameBytes := info.Width * info.Height * 3
	s := &Source{
		info:   info,
		opts:   opts,
		logger: logger.WithComponent("source"),
		cmd:    cmd,
		stdout: stdout,
		frames: make(chan *pipeline.Frame, opts.Prefetch),
		done:   make(chan struct{}),
		pool: sync.Pool{
			New: func() any { return make([]byte, frameBytes) },
		},
	}

	s.logger.Debug("Video opened: %dx%d @ %.2f fps", info.Width, info.Height, info.FPS)
	go s.produce(frameBytes)
	return s, nil
}

// Info returns the probed stream metadata.
func (s *Source) Info() ports.SourceInfo {
	return s.info
}

// Next returns the next sampled frame. It returns io.EOF at end of stream
// and an error wrapping pipeline.ErrDecodeFailure when decoding failed.
func (s *Source) Next(ctx context.Context) (*pipeline.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-s.frames:
		if !ok {
			s.mu.Lock()
			cause := s.cause
			s.mu.Unlock()
			if cause != nil {
				return nil, cause
			}
			return nil, io.EOF
		}
		return frame, nil
	}
}

// Close stops the producer and kills the decode process. Safe to call more
// than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.stdout.Close()
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.cmd.Wait()
	})
	return nil
}

// produce reads fixed-size frames from the ffmpeg pipe, applies the
// sampling window, and pushes them into the bounded queue.
func (s *Source) produce(frameBytes int) {
	defer close(s.frames)

	forwarded := 0
	for index := 0; ; index++ {
		buf := s.pool.Get().([]byte)

		n, err := io.ReadFull(s.stdout, buf)
		if err != nil {
			s.pool.Put(buf)
			if errors.Is(err, io.EOF) && n == 0 {
				return
			}
			select {
			case <-s.done:
				// Closed mid-read; not a decode failure.
				return
			default:
			}
			s.fail(fmt.Errorf("%w: ffmpeg stream ended mid-frame at %d (read %d/%d bytes)",
				pipeline.ErrDecodeFailure, index, n, frameBytes))
			return
		}

		if index < s.opts.StartFrame || (index-s.opts.StartFrame)%s.opts.Stride != 0 {
			s.pool.Put(buf)
			continue
		}
		if s.opts.MaxFrames > 0 && forwarded >= s.opts.MaxFrames {
			s.pool.Put(buf)
			return
		}

		frame := &pipeline.Frame{
			Pixels:    buf,
			Width:     s.info.Width,
			Height:    s.info.Height,
			Index:     index,
			Timestamp: s.timestampOf(index),
			OnRelease: func() { s.pool.Put(buf) },
		}

		select {
		case s.frames <- frame:
			forwarded++
		case <-s.done:
			s.pool.Put(buf)
			return
		}
	}
}

func (s *Source) timestampOf(index int) time.Duration {
	if s.info.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(index) / s.info.FPS * float64(time.Second))
}

func (s *Source) fail(err error) {
	s.mu.Lock()
	s.cause = err
	s.mu.Unlock()
}

// Ensure Source implements ports.FrameSource
var _ ports.FrameSource = (*Source)(nil)
