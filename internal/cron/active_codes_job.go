package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stampcard-backend/pkg/logger"
)

type activeCodeCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

type activeCodesGauge interface {
	SetActiveCodes(n int64)
}

type ActiveCodesJobParams struct {
	Logger  *logger.Logger
	Counter activeCodeCounter
	Gauge   activeCodesGauge
}

// NewActiveCodesJob refreshes the active code gauge. It never touches codes;
// expiry stays a read-time predicate.
func NewActiveCodesJob(params ActiveCodesJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Counter == nil {
		return nil, fmt.Errorf("code counter required")
	}
	if params.Gauge == nil {
		return nil, fmt.Errorf("gauge required")
	}
	return &activeCodesJob{
		logg:    params.Logger,
		counter: params.Counter,
		gauge:   params.Gauge,
	}, nil
}

type activeCodesJob struct {
	logg    *logger.Logger
	counter activeCodeCounter
	gauge   activeCodesGauge
}

func (j *activeCodesJob) Name() string { return "loyalty_active_codes" }

func (j *activeCodesJob) Run(ctx context.Context) error {
	count, err := j.counter.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("count active codes: %w", err)
	}
	j.gauge.SetActiveCodes(count)
	j.logg.Info(j.logg.WithField(ctx, "active_codes", count), "active code gauge refreshed")
	return nil
}
