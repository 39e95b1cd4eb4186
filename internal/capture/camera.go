package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// maxSnapshotBytes bounds a single HTTP snapshot.
const maxSnapshotBytes = 32 << 20

// Camera takes one JPEG photo.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

// CameraSource captures from a Camera and stores every photo in a
// directory as photo_NNNNNN.jpg. Existing files are never overwritten.
type CameraSource struct {
	camera   Camera
	dir      string
	fallback string

	mu   sync.Mutex
	next int
	now  func() time.Time
}

// NewCameraSource creates dir if needed and continues the numbering after
// the photos already in it. fallback, when not empty, names an image used
// whenever the camera fails.
func NewCameraSource(camera Camera, dir, fallback string) (*CameraSource, error) {
	if camera == nil {
		return nil, errors.New("camera source needs a camera")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read capture dir: %w", err)
	}
	count := 0
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".jpg" || ext == ".jpeg") {
			count++
		}
	}
	return &CameraSource{
		camera:   camera,
		dir:      dir,
		fallback: fallback,
		next:     count,
		now:      time.Now,
	}, nil
}

// Next captures a photo. A camera failure falls back to the fallback image
// when one exists; otherwise the error is returned and the caller may try
// again on the next tick.
func (s *CameraSource) Next(ctx context.Context) (Shot, error) {
	data, err := s.camera.Capture(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Shot{}, ctxErr
		}
		if s.fallback != "" {
			if _, statErr := os.Stat(s.fallback); statErr == nil {
				return Shot{Path: s.fallback, Name: baseName(s.fallback), Taken: s.now(), Fallback: true}, nil
			}
		}
		return Shot{}, fmt.Errorf("capture: %w", err)
	}
	if len(data) == 0 {
		return Shot{}, errors.New("capture: camera returned an empty image")
	}

	path, err := s.store(data)
	if err != nil {
		return Shot{}, err
	}
	return Shot{Path: path, Name: baseName(path), Taken: s.now()}, nil
}

// store writes data under the next free sequential name.
func (s *CameraSource) store(data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		path := filepath.Join(s.dir, fmt.Sprintf("photo_%06d.jpg", s.next))
		s.next++

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("store capture: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("store capture: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("store capture: %w", err)
		}
		return path, nil
	}
}

// HTTPCamera fetches a JPEG snapshot from a URL, as offered by most IP
// cameras and by camera bridges for robots.
type HTTPCamera struct {
	URL    string
	Client *http.Client
}

// NewHTTPCamera returns a camera with its own client and request timeout.
func NewHTTPCamera(url string, timeout time.Duration) *HTTPCamera {
	return &HTTPCamera{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Capture implements Camera.
func (c *HTTPCamera) Capture(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/jpeg")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot %s: %s", c.URL, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
}
