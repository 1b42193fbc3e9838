package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AnomalyKind identifies which detector produced a finding.
type AnomalyKind string

const (
	KindDuplicate   AnomalyKind = "duplicate"
	KindPriceCreep  AnomalyKind = "price_creep"
	KindRoundNumber AnomalyKind = "round_number"
)

// Severity ranks how urgent a finding is for review.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnomalyStatus tracks the review lifecycle of a finding. Detectors always
// create findings as StatusOpen; transitions happen outside the detection core.
type AnomalyStatus string

const (
	StatusOpen         AnomalyStatus = "open"
	StatusAcknowledged AnomalyStatus = "acknowledged"
	StatusDismissed    AnomalyStatus = "dismissed"
)

// Tenant is an organization whose payables are audited in isolation.
type Tenant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	AlertEmail string    `json:"alert_email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Vendor is a payee; the grouping unit for baselines and duplicate checks.
// ExternalID is the accounting-system identifier, unique per tenant.
type Vendor struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
}

// Bill is one payable transaction record. Bills are written by ingestion and
// treated as read-only by the detection core.
type Bill struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	VendorID     uuid.UUID       `json:"vendor_id"`
	ExternalID   string          `json:"external_id"`
	BillNumber   string          `json:"bill_number,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	TxnDate      time.Time       `json:"txn_date"`
	HasLineItems bool            `json:"has_line_items"`
}

// VendorBaseline is a vendor's rolling statistical profile of bill amounts
// over a trailing window. Mean and standard deviation are float64: they exist
// only to position amounts in sigma-space, not to represent money.
type VendorBaseline struct {
	ID          uuid.UUID       `json:"id"`
	VendorID    uuid.UUID       `json:"vendor_id"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	SampleCount int             `json:"sample_count"`
	MeanAmount  float64         `json:"mean_amount"`
	StdAmount   float64         `json:"std_amount"`
	MinAmount   decimal.Decimal `json:"min_amount"`
	MaxAmount   decimal.Decimal `json:"max_amount"`
}

// Anomaly is a persisted, user-reviewable finding. At most one anomaly may
// exist per (tenant, bill, kind); the store enforces this as a uniqueness
// constraint. BillID is nullable: duplicate findings reference one primary
// bill and carry the related bill in metadata.
type Anomaly struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	BillID      *uuid.UUID      `json:"bill_id,omitempty"`
	Kind        AnomalyKind     `json:"kind"`
	Severity    Severity        `json:"severity"`
	Amount      decimal.Decimal `json:"amount"`
	Confidence  float64         `json:"confidence"`
	Description string          `json:"description"`
	Metadata    AnomalyMetadata `json:"metadata"`
	ShouldAlert bool            `json:"should_alert"`
	Status      AnomalyStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}
