package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahmedMshaban/AuraFlow-sub001/internal/models"
)

// ErrNotSetUp is returned when StartRecording is called before Setup has
// bound the recorder to a camera stream.
var ErrNotSetUp = errors.New("recorder not set up")

const defaultDurationMs = 3000

// encodingCandidate pairs a mime type with the ffmpeg pieces needed to
// produce it. Candidates are ordered by descending quality; Setup picks the
// first one the local ffmpeg build supports.
type encodingCandidate struct {
	mimeType string
	encoder  string
	format   string
	ext      string
}

var encodingCandidates = []encodingCandidate{
	{"video/webm;codecs=vp9", "libvpx-vp9", "webm", ".webm"},
	{"video/webm;codecs=vp8", "libvpx", "webm", ".webm"},
	{"video/mp4;codecs=h264", "libx264", "mp4", ".mp4"},
	{"video/x-motion-jpeg", "mjpeg", "avi", ".avi"},
}

// Stream describes an already-acquired camera source, e.g.
// {Input: "/dev/video0", Format: "v4l2"}.
type Stream struct {
	Input  string
	Format string
}

// Recorder captures fixed-duration clips from a camera stream with ffmpeg.
// Recording always stops on its own after the requested duration; there is
// no user stop action.
type Recorder struct {
	ffmpegPath string
	tempDir    string

	// supportsEncoder is swappable in tests; defaults to probing the local
	// ffmpeg build's encoder list.
	supportsEncoder func(encoder string) bool

	mu       sync.Mutex
	stream   *Stream
	encoding *encodingCandidate
	cancel   context.CancelFunc
}

func NewRecorder() (*Recorder, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	tempDir := filepath.Join(os.TempDir(), "auraflow-clips")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	r := &Recorder{
		ffmpegPath: ffmpegPath,
		tempDir:    tempDir,
	}
	r.supportsEncoder = r.probeEncoder
	return r, nil
}

// Setup binds the recorder to a live camera stream and selects the first
// supported encoding from the candidate list, falling back silently through
// descending quality. When no candidate is supported it warns and keeps the
// last candidate so recording still has a deterministic target.
func (r *Recorder) Setup(stream Stream) error {
	if stream.Input == "" {
		return fmt.Errorf("stream input is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.stream = &stream
	for i := range encodingCandidates {
		if r.supportsEncoder(encodingCandidates[i].encoder) {
			r.encoding = &encodingCandidates[i]
			return nil
		}
	}

	log.Printf("Warning: no supported encoding found among candidates, falling back to %s",
		encodingCandidates[len(encodingCandidates)-1].mimeType)
	r.encoding = &encodingCandidates[len(encodingCandidates)-1]
	return nil
}

// MimeType returns the encoding selected during Setup.
func (r *Recorder) MimeType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoding == nil {
		return ""
	}
	return r.encoding.mimeType
}

// RecordingOptions tweak a single capture. Zero values fall back to the
// 3-second default clip and the encoding chosen during Setup.
type RecordingOptions struct {
	DurationMs int64
	MimeType   string
}

// StartRecording captures a clip starting immediately, auto-stopping after
// the requested duration, and resolves with the finished clip, a playable
// URL and the elapsed duration.
func (r *Recorder) StartRecording(ctx context.Context, opts RecordingOptions) (*models.RecordingResult, error) {
	r.mu.Lock()
	if r.stream == nil {
		r.mu.Unlock()
		return nil, ErrNotSetUp
	}
	stream := *r.stream
	encoding := *r.encoding
	if opts.MimeType != "" {
		if c := candidateForMime(opts.MimeType); c != nil {
			encoding = *c
		}
	}

	durationMs := opts.DurationMs
	if durationMs <= 0 {
		durationMs = defaultDurationMs
	}

	clipPath := filepath.Join(r.tempDir, uuid.New().String()+encoding.ext)

	// The duration flag makes ffmpeg stop on its own; the context deadline
	// is a backstop so a wedged capture cannot hang the caller.
	recCtx, cancel := context.WithTimeout(ctx, time.Duration(durationMs)*time.Millisecond+15*time.Second)
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	args := []string{"-y"}
	if stream.Format != "" {
		args = append(args, "-f", stream.Format)
	}
	args = append(args,
		"-i", stream.Input,
		"-t", fmt.Sprintf("%.3f", float64(durationMs)/1000.0),
		"-c:v", encoding.encoder,
		"-f", encoding.format,
		clipPath,
	)

	started := time.Now()
	cmd := exec.CommandContext(recCtx, r.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(clipPath)
		return nil, fmt.Errorf("recording failed: %w: %s", err, lastLine(stderr.String()))
	}

	info, err := os.Stat(clipPath)
	if err != nil || info.Size() == 0 {
		os.Remove(clipPath)
		return nil, fmt.Errorf("recording produced an empty clip")
	}

	return &models.RecordingResult{
		Path:       clipPath,
		URL:        "file://" + clipPath,
		MimeType:   encoding.mimeType,
		Size:       info.Size(),
		DurationMs: time.Since(started).Milliseconds(),
	}, nil
}

// Cleanup halts any in-progress recording and releases the stream binding.
// Safe to call multiple times.
func (r *Recorder) Cleanup() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.stream = nil
	r.encoding = nil
	r.mu.Unlock()

	if err := os.RemoveAll(r.tempDir); err != nil {
		return err
	}
	return nil
}

func (r *Recorder) probeEncoder(encoder string) bool {
	cmd := exec.Command(r.ffmpegPath, "-hide_banner", "-encoders")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return false
	}
	return strings.Contains(stdout.String(), " "+encoder+" ")
}

func candidateForMime(mimeType string) *encodingCandidate {
	for i := range encodingCandidates {
		if encodingCandidates[i].mimeType == mimeType {
			return &encodingCandidates[i]
		}
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
