package payroll

import (
	"context"
	"fmt"
)

// CompensationResolver reads the salary and benefit facts owned by the
// employee aggregate. It never writes.
type CompensationResolver struct {
	store StoreAPI
}

func NewCompensationResolver(store StoreAPI) *CompensationResolver {
	return &CompensationResolver{store: store}
}

// LatestSalaryFor returns the salary record with the latest effective date.
// The boolean is false when the employee has no salary on file.
func (r *CompensationResolver) LatestSalaryFor(ctx context.Context, employeeID string) (SalaryRecord, bool, error) {
	record, ok, err := r.store.LatestSalary(ctx, employeeID)
	if err != nil {
		return SalaryRecord{}, false, fmt.Errorf("resolve salary for employee %s: %w", employeeID, err)
	}
	return record, ok, nil
}

func (r *CompensationResolver) ActiveBenefitsFor(ctx context.Context, employeeID string) ([]BenefitEnrollment, error) {
	benefits, err := r.store.ActiveBenefits(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("resolve benefits for employee %s: %w", employeeID, err)
	}
	active := make([]BenefitEnrollment, 0, len(benefits))
	for _, benefit := range benefits {
		if benefit.Status == BenefitStatusActive {
			active = append(active, benefit)
		}
	}
	return active, nil
}
