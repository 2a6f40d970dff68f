package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dooshek/gamecoach/internal/llm"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/google/uuid"
)

const defaultBackoffUnit = time.Second

// Service runs one analysis request against the remote client with retries
type Service struct {
	client     llm.Client
	maxRetries int
	unit       time.Duration
	now        func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithBackoffUnit sets the base delay between attempts; attempt n waits 2^n units
func WithBackoffUnit(d time.Duration) Option {
	return func(s *Service) {
		s.unit = d
	}
}

// NewService wraps client; maxRetries counts retries after the first attempt
func NewService(client llm.Client, maxRetries int, opts ...Option) *Service {
	if maxRetries < 0 {
		maxRetries = 0
	}
	s := &Service{
		client:     client,
		maxRetries: maxRetries,
		unit:       defaultBackoffUnit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider returns the name of the wrapped client
func (s *Service) Provider() string {
	return s.client.Name()
}

// Analyze sends the frame and prompt, retrying with exponential backoff.
// It gives up early when ctx is done.
func (s *Service) Analyze(ctx context.Context, image []byte, prompt string) (types.Advice, error) {
	start := s.now()

	text, err := s.retry(ctx, func() (string, error) {
		return s.client.Analyze(ctx, image, prompt)
	})
	if err != nil {
		return types.Advice{}, fmt.Errorf("analysis failed: %w", err)
	}

	finished := s.now()
	return types.Advice{
		ID:             uuid.NewString(),
		Advice:         text,
		Confidence:     Score(text),
		Provider:       s.client.Name(),
		Timestamp:      finished,
		AnalysisTimeMs: finished.Sub(start).Milliseconds(),
	}, nil
}

func (s *Service) retry(ctx context.Context, op func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		text, err := op()
		if err == nil {
			return text, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt == s.maxRetries {
			break
		}

		delay := time.Duration(1<<attempt) * s.unit
		logger.Debugf("Analysis attempt %d failed (%v), retrying in %s", attempt+1, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}

// Degraded builds the placeholder shown when a cycle could not produce advice
func Degraded(err error, analysisTime time.Duration) types.Advice {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return types.Advice{
		ID:             uuid.NewString(),
		Advice:         "Analysis failed: " + msg,
		Confidence:     0.1,
		Provider:       types.ProviderNameError,
		Timestamp:      time.Now(),
		AnalysisTimeMs: analysisTime.Milliseconds(),
	}
}
