// Package vfs resolves logical file names to readable byte streams. It
// tries the name as given, then a fixed list of candidate extensions, the
// same "try a handler against candidate extensions" shape the teacher's
// pkg/decoders.NewDecoder dispatches on, pushed one level earlier so the
// stream driver never has to guess a file's extension itself.
package vfs

import (
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when no candidate name resolves to an existing
// file. It is distinguished from other I/O errors (permission, etc.), which
// propagate as-is.
var ErrNotFound = errors.New("vfs: file not found")

// candidateExtensions are tried, in order, against a name with no extension
// of its own (or whose own extension didn't resolve).
var candidateExtensions = []string{"", ".ogg", ".mp3", ".flac", ".fla", ".wav", ".mid", ".midi"}

// FS resolves and opens files by logical name.
type FS interface {
	Open(name string) (io.ReadSeekCloser, error)
}

// OSFS resolves names against a root directory on the local filesystem.
type OSFS struct {
	Root string
}

// New creates an OSFS rooted at root. An empty root resolves names as
// given, relative to the process's working directory.
func New(root string) *OSFS {
	return &OSFS{Root: root}
}

func (fs *OSFS) Open(name string) (io.ReadSeekCloser, error) {
	for _, ext := range candidateExtensions {
		path := name + ext
		if fs.Root != "" {
			path = fs.Root + string(os.PathSeparator) + path
		}
		f, err := os.Open(path)
		if err == nil {
			return f, nil
		}
		if os.IsNotExist(err) {
			continue
		}
		// Located but unreadable: an I/O error, propagate immediately.
		return nil, err
	}
	return nil, ErrNotFound
}
