package capture

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// FrameGrabber pulls single JPEG frames out of finished clips so the
// detector can score them.
type FrameGrabber struct {
	ffmpegPath string
	tempDir    string
}

func NewFrameGrabber() (*FrameGrabber, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	tempDir := filepath.Join(os.TempDir(), "auraflow-frames")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &FrameGrabber{ffmpegPath: ffmpegPath, tempDir: tempDir}, nil
}

// MidFrame extracts a frame from the middle of the clip, scaled to fit the
// given square size. The middle is used because the first frames of a short
// capture often catch the camera still adjusting exposure.
func (g *FrameGrabber) MidFrame(clipPath string, size int) ([]byte, error) {
	if _, err := os.Stat(clipPath); err != nil {
		return nil, fmt.Errorf("clip not accessible: %w", err)
	}

	duration, err := g.clipDuration(clipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get clip duration: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("invalid clip duration: %f", duration)
	}

	return g.frameAt(clipPath, duration/2, size)
}

func (g *FrameGrabber) frameAt(clipPath string, timestamp float64, size int) ([]byte, error) {
	tempFile := filepath.Join(g.tempDir, fmt.Sprintf("frame_%f.jpg", timestamp))
	defer os.Remove(tempFile)

	args := []string{
		"-ss", fmt.Sprintf("%.2f", timestamp),
		"-i", clipPath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease", size, size),
		"-q:v", "2",
		"-f", "mjpeg",
		tempFile,
	}

	cmd := exec.Command(g.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to extract frame at %.2f: %w: %s", timestamp, err, lastLine(stderr.String()))
	}

	data, err := os.ReadFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted frame: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("extracted frame is empty")
	}
	return data, nil
}

func (g *FrameGrabber) clipDuration(clipPath string) (float64, error) {
	if ffprobePath, err := exec.LookPath("ffprobe"); err == nil {
		cmd := exec.Command(ffprobePath,
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			clipPath)

		var stdout bytes.Buffer
		cmd.Stdout = &stdout

		if err := cmd.Run(); err == nil {
			if duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64); err == nil && duration > 0 {
				return duration, nil
			}
		}
	}

	// ffprobe unavailable; parse the Duration line from ffmpeg itself.
	cmd := exec.Command(g.ffmpegPath, "-i", clipPath, "-f", "null", "-")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()

	return parseDuration(stderr.String())
}

func parseDuration(ffmpegOutput string) (float64, error) {
	const prefix = "Duration: "
	start := strings.Index(ffmpegOutput, prefix)
	if start == -1 {
		return 0, fmt.Errorf("duration not found in ffmpeg output")
	}
	start += len(prefix)

	end := strings.Index(ffmpegOutput[start:], ",")
	if end == -1 {
		return 0, fmt.Errorf("invalid duration format")
	}

	parts := strings.Split(ffmpegOutput[start:start+end], ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration format: %s", ffmpegOutput[start:start+end])
	}

	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}

	return hours*3600 + minutes*60 + seconds, nil
}

// Cleanup removes the grabber's temp directory.
func (g *FrameGrabber) Cleanup() error {
	return os.RemoveAll(g.tempDir)
}
