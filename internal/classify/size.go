package classify

import (
	"context"
	"fmt"
)

// SizeChecker flags images below a byte threshold using HEAD requests only
type SizeChecker struct {
	size SizeFunc
}

// NewSizeChecker creates a checker over size
func NewSizeChecker(size SizeFunc) *SizeChecker {
	return &SizeChecker{size: size}
}

// IsSmall reports whether the image is smaller than thresholdKB kilobytes.
// An unknown size is never small.
func (s *SizeChecker) IsSmall(ctx context.Context, imageURL string, thresholdKB int) (bool, float64, error) {
	bytes, err := s.size(ctx, imageURL)
	if err != nil {
		return false, 0, fmt.Errorf("image size %s: %w", imageURL, err)
	}
	if bytes < 0 {
		return false, 0, nil
	}
	kb := float64(bytes) / 1024
	return kb < float64(thresholdKB), kb, nil
}
