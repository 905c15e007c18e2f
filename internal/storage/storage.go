package storage

import "io"

type ClipInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage holds uploaded capture clips for the duration of their analysis.
// Clips are ephemeral: callers delete them once the detector has consumed a
// frame.
type Storage interface {
	SaveClip(r io.Reader, info ClipInfo) (string, error)
	ClipPath(name string) (string, error)
	DeleteClip(name string) error
}
