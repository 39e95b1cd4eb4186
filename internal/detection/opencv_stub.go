//go:build !gocv
// +build !gocv

package detection

import "fmt"

func newOpenCV() (Backend, error) {
	return nil, fmt.Errorf("opencv: %w (rebuild with -tags gocv)", ErrBackendUnavailable)
}
