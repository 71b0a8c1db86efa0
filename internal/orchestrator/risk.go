package orchestrator

import "ms-payments/internal/models"

const (
	RiskNormal   = "normal"
	RiskElevated = "elevated"
	RiskHigh     = "high"
)

// RiskAssessor grades a payment before approval. The grade is advisory
// metadata on the payment row; it never blocks a transition.
type RiskAssessor interface {
	Assess(payment *models.Payment) string
}

// ThresholdAssessor grades by amount in minor units.
type ThresholdAssessor struct {
	ElevatedAbove int64
	HighAbove     int64
}

func NewThresholdAssessor() *ThresholdAssessor {
	return &ThresholdAssessor{
		ElevatedAbove: 50_000,
		HighAbove:     500_000,
	}
}

func (a *ThresholdAssessor) Assess(payment *models.Payment) string {
	switch {
	case payment.Amount > a.HighAbove:
		return RiskHigh
	case payment.Amount > a.ElevatedAbove:
		return RiskElevated
	default:
		return RiskNormal
	}
}
