// Package classify decides whether a vehicle image is a placeholder. Remote
// verdicts are cached by image byte size so that a templated placeholder is
// classified once per size, not once per card.
package classify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"sjsage522/srpauditor/logger"
	apperrors "sjsage522/srpauditor/pkg/errors"

	"golang.org/x/time/rate"
)

// Classifier is a remote placeholder classifier
type Classifier interface {
	Name() string
	Classify(ctx context.Context, imageURL string) (bool, error)
	// CheckReady reports missing credentials before a run starts
	CheckReady() error
}

// SizeFunc returns the byte size of a remote image, or -1 when unknown
type SizeFunc func(ctx context.Context, url string) (int64, error)

var betterPhoto = regexp.MustCompile(`(?i)better[-_]?photo|photo-coming-soon|coming[-_]?soon`)

// IsBetterPhoto reports whether the URL names a "better photo coming" image
func IsBetterPhoto(imageURL string) bool {
	return betterPhoto.MatchString(imageURL)
}

// DetectorOptions configures remote calls
type DetectorOptions struct {
	Timeout       time.Duration
	RatePerMinute int
}

// Detector answers IsPlaceholder using the URL heuristic, the size cache and
// finally the remote classifier
type Detector struct {
	classifier Classifier
	size       SizeFunc
	cache      *Cache
	timeout    time.Duration
	limiter    *rate.Limiter

	// serializes lookup, classify and record so a size is written once
	mu  sync.Mutex
	log *logger.Logger
}

// NewDetector wires a detector. cache may be nil to classify every image.
func NewDetector(classifier Classifier, size SizeFunc, cache *Cache, opts DetectorOptions) *Detector {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RatePerMinute))
	}
	return &Detector{
		classifier: classifier,
		size:       size,
		cache:      cache,
		timeout:    opts.Timeout,
		limiter:    rate.NewLimiter(limit, 1),
		log:        logger.ForComponent("classifier").WithField("provider", classifier.Name()),
	}
}

// CheckReady delegates to the provider
func (d *Detector) CheckReady() error {
	return d.classifier.CheckReady()
}

// IsPlaceholder classifies imageURL. Errors are ClassificationErrors; callers
// treat them as "not a placeholder" for that card.
func (d *Detector) IsPlaceholder(ctx context.Context, imageURL string) (bool, error) {
	if imageURL == "" {
		return false, nil
	}
	if IsBetterPhoto(imageURL) {
		d.log.Debug().Str("url", imageURL).Msg("Better photo pattern matched")
		return true, nil
	}

	size := int64(-1)
	if d.size != nil {
		s, err := d.size(ctx, imageURL)
		if err != nil {
			d.log.Debug().Err(err).Str("url", imageURL).Msg("Image size unknown; cache skipped")
		} else {
			size = s
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cache != nil {
		if verdict, ok := d.cache.Lookup(size); ok {
			d.log.Debug().Int64("size", size).Bool("placeholder", verdict).Msg("Cache hit")
			return verdict, nil
		}
	}

	verdict, err := d.classify(ctx, imageURL)
	if err != nil {
		return false, err
	}

	if d.cache != nil {
		written, err := d.cache.Record(ctx, size, verdict)
		if err != nil {
			d.log.Warn().Err(err).Int64("size", size).Msg("Failed to persist cache entry")
		} else if written {
			d.log.Debug().Int64("size", size).Bool("placeholder", verdict).Msg("Cache entry written")
		}
	}
	return verdict, nil
}

func (d *Detector) classify(ctx context.Context, imageURL string) (bool, error) {
	name := d.classifier.Name()
	if err := d.limiter.Wait(ctx); err != nil {
		return false, apperrors.NewClassification(name, "rate limiter wait aborted", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := time.Now()
	verdict, err := d.classifier.Classify(reqCtx, imageURL)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return false, apperrors.NewClassification(name, fmt.Sprintf("timed out after %s", d.timeout), err)
		}
		if apperrors.IsClassification(err) {
			return false, err
		}
		return false, apperrors.NewClassification(name, "request failed", err)
	}

	d.log.Debug().
		Str("url", imageURL).
		Bool("placeholder", verdict).
		Dur("took", time.Since(started)).
		Msg("Image classified")
	return verdict, nil
}
