package detect

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/apsentry/apsentry/models"
)

var roundStep = decimal.NewFromInt(500)

// RoundNumberDetector flags bills with a suspiciously round total and no
// line-item detail. Any exact multiple of 500 currency units qualifies,
// covering 500, 1000, 1500, 3000, 7500 and so on; amounts below the alert
// minimum are ignored.
type RoundNumberDetector struct {
	AlertMinAmount decimal.Decimal
	Logger         zerolog.Logger
}

func (d *RoundNumberDetector) Kind() models.AnomalyKind { return models.KindRoundNumber }

func (d *RoundNumberDetector) Run(ctx context.Context, store models.Store, tenantID uuid.UUID) (int, error) {
	bills, err := store.BillsByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("loading bills: %w", err)
	}

	count := 0
	for _, bill := range bills {
		if bill.HasLineItems {
			continue
		}
		if bill.TotalAmount.LessThan(d.AlertMinAmount) {
			continue
		}
		if !bill.TotalAmount.Mod(roundStep).IsZero() {
			continue
		}

		exists, err := store.HasAnomaly(ctx, tenantID, bill.ID, models.KindRoundNumber)
		if err != nil {
			return count, fmt.Errorf("checking existing finding: %w", err)
		}
		if exists {
			continue
		}

		billID := bill.ID
		inserted, err := store.InsertAnomaly(ctx, &models.Anomaly{
			TenantID:    tenantID,
			BillID:      &billID,
			Kind:        models.KindRoundNumber,
			Severity:    models.SeverityLow,
			Amount:      bill.TotalAmount,
			Confidence:  0.6,
			Description: fmt.Sprintf("Round number ($%s) with no line-item detail - consider verifying against source invoice", bill.TotalAmount.StringFixed(0)),
			Metadata: models.AnomalyMetadata{
				RoundNumber: &models.RoundNumberMeta{RoundValue: bill.TotalAmount},
			},
			ShouldAlert: bill.TotalAmount.GreaterThanOrEqual(d.AlertMinAmount),
		})
		if err != nil {
			return count, fmt.Errorf("writing finding: %w", err)
		}
		if inserted {
			count++
			d.Logger.Debug().
				Str("bill_id", bill.ID.String()).
				Str("amount", bill.TotalAmount.String()).
				Msg("Round number flagged")
		}
	}
	return count, nil
}
