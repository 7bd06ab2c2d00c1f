package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/sentinel-live/internal/utils"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const megabyte = 1024 * 1024

// ErrEnded is returned by Play once the underlying stream has finished.
var ErrEnded = errors.New("video source has ended")

// FFmpegSource is a live Source fed by an ffmpeg MJPEG pipe. Only the latest
// frame is kept; older frames are overwritten as they arrive.
type FFmpegSource struct {
	input    string
	realtime bool
	log      *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cmd     *utils.SafeCommand
	latest  []byte
	frames  int
	started bool
	paused  bool
	ended   bool
	err     error
	done    chan struct{}
}

// NewFFmpegSource prepares a source for input (a file path or stream URL).
// Nothing is spawned until Play is called.
func NewFFmpegSource(ctx context.Context, input string, realtime bool, logger *zap.SugaredLogger) *FFmpegSource {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &FFmpegSource{
		input:    input,
		realtime: realtime,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Play spawns ffmpeg on first use and un-pauses afterwards.
func (s *FFmpegSource) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrEnded
	}
	s.paused = false
	if s.started {
		return nil
	}

	cmd := utils.NewFFmpegCmd(s.ctx, s.input, s.realtime)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	s.cmd = cmd
	s.started = true

	go s.readLoop(bufio.NewReaderSize(out, megabyte))
	return nil
}

func (s *FFmpegSource) readLoop(out *bufio.Reader) {
	defer close(s.done)

	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	for scanner.Scan() {
		s.mu.Lock()
		if !s.paused {
			// The scanner reuses its buffer, so the frame must be copied out.
			s.latest = append(s.latest[:0], scanner.Bytes()...)
			s.frames++
		}
		s.mu.Unlock()
	}
	scanErr := scanner.Err()
	waitErr := s.cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	s.latest = nil
	switch {
	case scanErr != nil:
		s.err = fmt.Errorf("frame scanner failed: %w", scanErr)
	case waitErr != nil && s.ctx.Err() == nil:
		s.err = fmt.Errorf("ffmpeg exited: %w", waitErr)
	}
	if s.err != nil {
		s.log.Warnw("video source stopped", "input", s.input, "error", s.err)
	} else {
		s.log.Infow("video source ended", "input", s.input, "frames", s.frames)
	}
}

// CurrentFrame decodes the most recent JPEG from the pipe.
func (s *FFmpegSource) CurrentFrame() (image.Image, bool) {
	s.mu.Lock()
	if !s.started || s.ended || len(s.latest) == 0 {
		s.mu.Unlock()
		return nil, false
	}
	data := make([]byte, len(s.latest))
	copy(data, s.latest)
	s.mu.Unlock()

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		s.log.Debugw("dropping undecodable frame", "error", err)
		return nil, false
	}
	return img, true
}

func (s *FFmpegSource) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.paused && !s.ended
}

// Pause freezes the current frame; incoming frames are discarded until Play.
func (s *FFmpegSource) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Ended returns a channel closed once the pipe has drained.
func (s *FFmpegSource) Ended() <-chan struct{} {
	return s.done
}

// Err reports why the source stopped, if it stopped abnormally.
func (s *FFmpegSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Command exposes the ffmpeg process so callers can dump its stderr on failure.
func (s *FFmpegSource) Command() *utils.SafeCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd
}

// Close kills ffmpeg and waits for the reader to drain.
func (s *FFmpegSource) Close() {
	s.cancel()
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}
