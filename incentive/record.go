package incentive

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculationRecord is the persisted shape of a Calculation. Stores read
// and write records; only Restore turns one back into an aggregate.
type CalculationRecord struct {
	ID               CalculationID
	EmployeeID       EmployeeID
	PlanID           PlanID
	Period           DateRange
	TargetValue      decimal.Decimal
	ActualValue      decimal.Decimal
	BaseSalary       Money
	Currency         string
	Achievement      Percentage
	AppliedSlabID    *SlabID
	Gross            Money
	Net              Money
	Prorata          *Percentage
	MaximumPayout    *Money
	MinimumPayout    *Money
	BelowThreshold   bool
	Status           CalculationStatus
	Approvals        []Approval
	RejectionReason  string
	RejectedBy       string
	VoidReason       string
	VoidedBy         string
	PaidBy           string
	PaymentReference string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	SubmittedAt      *time.Time
	ApprovedAt       *time.Time
	PaidAt           *time.Time
	VoidedAt         *time.Time
	Version          int
}

// Record snapshots the aggregate. Pending events are not part of it.
func (c *Calculation) Record() CalculationRecord {
	return CalculationRecord{
		ID:               c.id,
		EmployeeID:       c.employeeID,
		PlanID:           c.planID,
		Period:           c.period,
		TargetValue:      c.targetValue,
		ActualValue:      c.actualValue,
		BaseSalary:       c.baseSalary,
		Currency:         c.currency,
		Achievement:      c.achievement,
		AppliedSlabID:    c.AppliedSlabID(),
		Gross:            c.gross,
		Net:              c.net,
		Prorata:          c.Prorata(),
		MaximumPayout:    cloneMoney(c.maximumPayout),
		MinimumPayout:    cloneMoney(c.minimumPayout),
		BelowThreshold:   c.belowThreshold,
		Status:           c.status,
		Approvals:        c.Approvals(),
		RejectionReason:  c.rejectionReason,
		RejectedBy:       c.rejectedBy,
		VoidReason:       c.voidReason,
		VoidedBy:         c.voidedBy,
		PaidBy:           c.paidBy,
		PaymentReference: c.paymentReference,
		CreatedAt:        c.createdAt,
		UpdatedAt:        c.updatedAt,
		SubmittedAt:      c.submittedAt,
		ApprovedAt:       c.approvedAt,
		PaidAt:           c.paidAt,
		VoidedAt:         c.voidedAt,
		Version:          c.version,
	}
}

// Restore rebuilds an aggregate from its persisted record.
func Restore(r CalculationRecord) *Calculation {
	approvals := make([]Approval, len(r.Approvals))
	copy(approvals, r.Approvals)
	c := &Calculation{
		id:               r.ID,
		employeeID:       r.EmployeeID,
		planID:           r.PlanID,
		period:           r.Period,
		targetValue:      r.TargetValue,
		actualValue:      r.ActualValue,
		baseSalary:       r.BaseSalary,
		currency:         r.Currency,
		achievement:      r.Achievement,
		gross:            r.Gross,
		net:              r.Net,
		maximumPayout:    cloneMoney(r.MaximumPayout),
		minimumPayout:    cloneMoney(r.MinimumPayout),
		belowThreshold:   r.BelowThreshold,
		status:           r.Status,
		approvals:        approvals,
		rejectionReason:  r.RejectionReason,
		rejectedBy:       r.RejectedBy,
		voidReason:       r.VoidReason,
		voidedBy:         r.VoidedBy,
		paidBy:           r.PaidBy,
		paymentReference: r.PaymentReference,
		createdAt:        r.CreatedAt,
		updatedAt:        r.UpdatedAt,
		submittedAt:      r.SubmittedAt,
		approvedAt:       r.ApprovedAt,
		paidAt:           r.PaidAt,
		voidedAt:         r.VoidedAt,
		version:          r.Version,
	}
	if r.AppliedSlabID != nil {
		id := *r.AppliedSlabID
		c.appliedSlabID = &id
	}
	if r.Prorata != nil {
		p := *r.Prorata
		c.prorata = &p
	}
	return c
}
