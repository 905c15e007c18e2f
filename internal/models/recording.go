package models

import "os"

// RecordingResult describes one finished fixed-duration capture. It is
// ephemeral: consumed once by the detector, then released.
type RecordingResult struct {
	Path       string `json:"path"`
	URL        string `json:"url"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	DurationMs int64  `json:"duration_ms"`
}

// Release removes the clip file backing the recording. Safe to call on an
// already-released result.
func (r *RecordingResult) Release() error {
	if r.Path == "" {
		return nil
	}
	err := os.Remove(r.Path)
	r.Path = ""
	r.URL = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
