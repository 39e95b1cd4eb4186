// Package capture provides the photos the service reads: a one-pass folder
// source for test runs and a camera source that stores every capture.
package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Shot is one photo ready to be read.
type Shot struct {
	Path     string    // image file on disk
	Name     string    // base name without extension
	Taken    time.Time // capture time, or the file's modification time
	Fallback bool      // the camera failed and the fallback image was used
}

// Source yields photos until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (Shot, error)
}

// imageExtensions lists the file types a FolderSource picks up.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// FolderSource yields the images of a directory once, in name order.
// It is not safe for concurrent use.
type FolderSource struct {
	files []string
	pos   int
}

// NewFolderSource lists the images in dir. A directory without images is
// an error.
func NewFolderSource(dir string) (*FolderSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read test folder: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	sort.Strings(files)
	return &FolderSource{files: files}, nil
}

// Len returns the number of images the source will yield in total.
func (s *FolderSource) Len() int {
	return len(s.files)
}

// Next returns the next image or io.EOF after the last one.
func (s *FolderSource) Next(ctx context.Context) (Shot, error) {
	if err := ctx.Err(); err != nil {
		return Shot{}, err
	}
	if s.pos >= len(s.files) {
		return Shot{}, io.EOF
	}
	path := s.files[s.pos]
	s.pos++

	shot := Shot{Path: path, Name: baseName(path), Taken: time.Now()}
	if info, err := os.Stat(path); err == nil {
		shot.Taken = info.ModTime()
	}
	return shot, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
