package cache

import (
	"context"
	"time"

	"kasirponsel/backend/internal/domain"
)

// ReportCache keeps daily report aggregates hot. Reports for past days never
// change once the day is over, so even a short TTL removes most of the
// aggregate queries.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.DailyReport, bool, error)
	Set(ctx context.Context, key string, value *domain.DailyReport, ttl time.Duration) error
}

// Publisher fans change events out to other processes. The in-process watch
// hub works without it; a Redis-backed publisher lets a second reader follow
// the same stream.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.DailyReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.DailyReport, _ time.Duration) error {
	return nil
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ string, _ []byte) error {
	return nil
}
