package leakage

import (
	"time"

	"ctleak/domain/core"
)

// Class is the secret-correlated bucket a trial belongs to. Only 0 and 1 are valid.
type Class uint8

const (
	ClassFixed  Class = 0
	ClassRandom Class = 1
)

// Outcome is the three-valued result of a detection run
type Outcome string

const (
	OutcomeLeaking      Outcome = "leaking"
	OutcomeNoLeak       Outcome = "no_detected_leak"
	OutcomeInconclusive Outcome = "inconclusive"
)

// Severity grades a t statistic against the two decision thresholds
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityModerate Severity = "leaking"
	SeverityBananas  Severity = "confidently_leaking"
)

// VariantKind tells which preprocessing feeds a test variant
type VariantKind string

const (
	VariantUncropped   VariantKind = "uncropped"
	VariantCropped     VariantKind = "cropped"
	VariantSecondOrder VariantKind = "second_order"
)

// ClassStats summarizes one class of the chosen variant
type ClassStats struct {
	Count    int64   `json:"count" db:"count"`
	Mean     float64 `json:"mean" db:"mean"`
	Variance float64 `json:"variance" db:"variance"`
	StdDev   float64 `json:"std_dev" db:"std_dev"`
}

// Report is the structured record produced by the decision engine after each batch.
type Report struct {
	RunID  core.RunID `json:"run_id"`
	Target string     `json:"target"`

	Outcome      Outcome  `json:"outcome"`
	ConstantTime bool     `json:"constant_time"`
	Severity     Severity `json:"severity"`

	Variant     int         `json:"variant"`
	VariantKind VariantKind `json:"variant_kind"`
	// CropThreshold is the tick threshold of a cropped variant, zero otherwise.
	CropThreshold int64 `json:"crop_threshold,omitempty"`

	MaxT           float64 `json:"max_t"`
	PValue         float64 `json:"p_value"`
	Tau            float64 `json:"tau"`
	TracesToDetect float64 `json:"traces_to_detect"`

	Class0 ClassStats `json:"class0"`
	Class1 ClassStats `json:"class1"`

	// Traces is n0+n1 of the chosen variant.
	Traces int64 `json:"traces"`
	// Measured counts every trial pushed into the uncropped variant.
	Measured int64 `json:"measured"`
	// Wraparounds counts trials excluded because the counter wrapped.
	Wraparounds int64 `json:"wraparounds"`
	// StillToGo is how many traces the chosen variant lacks before the floor.
	StillToGo int64 `json:"still_to_go"`
	Rounds    int   `json:"rounds"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Enough reports whether the chosen variant reached the large-sample floor.
func (r *Report) Enough() bool {
	return r.StillToGo == 0
}

// Duration returns the wall time spent measuring.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
