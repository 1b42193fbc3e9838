package detect

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/apsentry/apsentry/models"
)

// PriceOutlierDetector flags bills priced anomalously above a vendor's
// baseline: amount strictly greater than mean + sigma*stddev. Vendors with a
// zero standard deviation have too little history to judge and are skipped.
type PriceOutlierDetector struct {
	SigmaThreshold float64
	AlertMinAmount decimal.Decimal
	Logger         zerolog.Logger
}

func (d *PriceOutlierDetector) Kind() models.AnomalyKind { return models.KindPriceCreep }

func (d *PriceOutlierDetector) Run(ctx context.Context, store models.Store, tenantID uuid.UUID) (int, error) {
	baselines, err := store.BaselinesByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("loading baselines: %w", err)
	}

	count := 0
	for _, baseline := range baselines {
		if baseline.StdAmount <= 0 {
			continue
		}
		threshold := baseline.MeanAmount + d.SigmaThreshold*baseline.StdAmount

		bills, err := store.BillsByVendorAbove(ctx, baseline.VendorID, decimal.NewFromFloat(threshold))
		if err != nil {
			return count, fmt.Errorf("loading bills for vendor %s: %w", baseline.VendorID, err)
		}

		for _, bill := range bills {
			exists, err := store.HasAnomaly(ctx, tenantID, bill.ID, models.KindPriceCreep)
			if err != nil {
				return count, fmt.Errorf("checking existing finding: %w", err)
			}
			if exists {
				continue
			}

			amount := bill.TotalAmount.InexactFloat64()
			z := (amount - baseline.MeanAmount) / baseline.StdAmount

			severity := models.SeverityMedium
			if z >= 3 {
				severity = models.SeverityHigh
			}

			billID := bill.ID
			inserted, err := store.InsertAnomaly(ctx, &models.Anomaly{
				TenantID:    tenantID,
				BillID:      &billID,
				Kind:        models.KindPriceCreep,
				Severity:    severity,
				Amount:      bill.TotalAmount,
				Confidence:  math.Min(0.99, 0.5+z/10),
				Description: fmt.Sprintf("Amount %.2f is %.1fσ above vendor baseline (%.2f)", amount, z, baseline.MeanAmount),
				Metadata: models.AnomalyMetadata{
					PriceCreep: &models.PriceCreepMeta{
						ZScore:       z,
						BaselineMean: baseline.MeanAmount,
						BaselineStd:  baseline.StdAmount,
					},
				},
				ShouldAlert: bill.TotalAmount.GreaterThanOrEqual(d.AlertMinAmount) || z >= d.SigmaThreshold,
			})
			if err != nil {
				return count, fmt.Errorf("writing finding: %w", err)
			}
			if inserted {
				count++
				d.Logger.Debug().
					Str("bill_id", bill.ID.String()).
					Float64("z_score", z).
					Str("amount", bill.TotalAmount.String()).
					Msg("Price outlier flagged")
			}
		}
	}
	return count, nil
}
