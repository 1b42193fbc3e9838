// Package detect holds the anomaly detectors. Each detector is a stateless
// unit with the same contract: read a tenant's bills (and, for outliers, its
// baselines) through the storage port and write findings, returning how many
// it created. Detectors never flag a bill twice for the same kind; the store
// enforces this with a (tenant, bill, kind) uniqueness constraint and the
// detectors additionally check before writing.
package detect

import (
	"context"

	"github.com/google/uuid"

	"github.com/apsentry/apsentry/models"
)

// Detector is one anomaly check over a tenant's current record set.
type Detector interface {
	Kind() models.AnomalyKind
	Run(ctx context.Context, store models.Store, tenantID uuid.UUID) (int, error)
}

// absDayDiff returns the absolute difference between two dates in whole days.
func absDayDiff(a, b models.Bill) int {
	d := int(a.TxnDate.Sub(b.TxnDate).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}
