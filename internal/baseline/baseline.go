package baseline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apsentry/apsentry/models"
)

// Calculator computes per-vendor rolling statistics of bill amounts over a
// trailing window. Re-running for the same day overwrites the existing
// window row, so it is safe to run at any frequency.
type Calculator struct {
	days   int
	logger zerolog.Logger
}

// NewCalculator creates a calculator over a trailing window of days.
func NewCalculator(days int, logger zerolog.Logger) *Calculator {
	return &Calculator{days: days, logger: logger}
}

// Run recomputes baselines for every vendor of the tenant as of now and
// returns the number of baselines written. Vendors with no bills in the
// window are skipped: no row, no error.
func (c *Calculator) Run(ctx context.Context, store models.Store, tenantID uuid.UUID, now time.Time) (int, error) {
	end := dateOnly(now)
	start := end.AddDate(0, 0, -c.days)

	vendors, err := store.VendorsByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("loading vendors: %w", err)
	}

	count := 0
	for _, vendor := range vendors {
		bills, err := store.BillsByVendorWindow(ctx, vendor.ID, start, end)
		if err != nil {
			return count, fmt.Errorf("loading bills for vendor %s: %w", vendor.ID, err)
		}
		if len(bills) == 0 {
			continue
		}

		b := statistics(bills)
		b.VendorID = vendor.ID
		b.WindowStart = start
		b.WindowEnd = end
		if err := store.UpsertBaseline(ctx, &b); err != nil {
			return count, fmt.Errorf("writing baseline for vendor %s: %w", vendor.ID, err)
		}
		count++

		c.logger.Debug().
			Str("vendor_id", vendor.ID.String()).
			Int("samples", b.SampleCount).
			Float64("mean", b.MeanAmount).
			Float64("std", b.StdAmount).
			Msg("Baseline updated")
	}
	return count, nil
}

// statistics computes count, mean, sample standard deviation (Bessel's
// correction, zero for a single sample), min and max over the bill amounts.
func statistics(bills []models.Bill) models.VendorBaseline {
	n := len(bills)
	min := bills[0].TotalAmount
	max := bills[0].TotalAmount
	sum := 0.0
	amounts := make([]float64, n)
	for i, b := range bills {
		amounts[i] = b.TotalAmount.InexactFloat64()
		sum += amounts[i]
		if b.TotalAmount.LessThan(min) {
			min = b.TotalAmount
		}
		if b.TotalAmount.GreaterThan(max) {
			max = b.TotalAmount
		}
	}
	mean := sum / float64(n)

	std := 0.0
	if n > 1 {
		ss := 0.0
		for _, a := range amounts {
			d := a - mean
			ss += d * d
		}
		std = math.Sqrt(ss / float64(n-1))
	}

	return models.VendorBaseline{
		SampleCount: n,
		MeanAmount:  mean,
		StdAmount:   std,
		MinAmount:   min,
		MaxAmount:   max,
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
