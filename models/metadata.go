package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AnomalyMetadata carries the kind-specific detail of a finding. Exactly one
// variant is set, matching the anomaly's Kind; the JSON encoding therefore
// contains a single object keyed by kind.
type AnomalyMetadata struct {
	Duplicate   *DuplicateMeta   `json:"duplicate,omitempty"`
	PriceCreep  *PriceCreepMeta  `json:"price_creep,omitempty"`
	RoundNumber *RoundNumberMeta `json:"round_number,omitempty"`
}

// DuplicateMeta links a duplicate finding to the other bill in the pair.
type DuplicateMeta struct {
	RelatedBillID uuid.UUID `json:"related_bill_id"`
}

// PriceCreepMeta records the statistics behind a price outlier finding.
type PriceCreepMeta struct {
	ZScore       float64 `json:"z_score"`
	BaselineMean float64 `json:"baseline_avg"`
	BaselineStd  float64 `json:"baseline_std"`
}

// RoundNumberMeta records the flagged round total.
type RoundNumberMeta struct {
	RoundValue decimal.Decimal `json:"round_value"`
}
