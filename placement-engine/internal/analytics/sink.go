// Package analytics delivers resolver events such as variation_assigned.
package analytics

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const EventVariationAssigned = "variation_assigned"

type Event struct {
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes"`
	Timestamp  time.Time      `json:"ts"`
}

// Sink accepts events. Track must not block for long; delivery is best-effort.
type Sink interface {
	Track(ctx context.Context, name string, attrs map[string]any) error
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Track(ctx context.Context, name string, attrs map[string]any) error {
	args := make([]any, 0, 2*len(attrs)+2)
	args = append(args, "event", name)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	s.logger.InfoContext(ctx, "analytics event", args...)
	return nil
}

// Multi fans one event out to several sinks and reports every failure.
type Multi []Sink

func (m Multi) Track(ctx context.Context, name string, attrs map[string]any) error {
	var errs []error
	for _, s := range m {
		if err := s.Track(ctx, name, attrs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Track(context.Context, string, map[string]any) error { return nil }
