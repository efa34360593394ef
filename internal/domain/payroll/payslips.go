package payroll

import (
	"context"
	"strings"
)

const defaultCurrency = "USD"

// PayslipStore persists payslips and reports per-run aggregates.
type PayslipStore struct {
	store StoreAPI
}

func NewPayslipStore(store StoreAPI) *PayslipStore {
	return &PayslipStore{store: store}
}

// Insert appends a generated payslip. A missing run surfaces as a
// *NotFoundError.
func (p *PayslipStore) Insert(ctx context.Context, payslip Payslip) (Payslip, error) {
	if strings.TrimSpace(payslip.RunID) == "" {
		return Payslip{}, missing("runId")
	}
	if strings.TrimSpace(payslip.EmployeeID) == "" {
		return Payslip{}, missing("employeeId")
	}
	if payslip.Currency == "" {
		payslip.Currency = defaultCurrency
	}
	payslip.Status = PayslipStatusGenerated
	return p.store.InsertPayslip(ctx, payslip)
}

func (p *PayslipStore) AggregateTotals(ctx context.Context, runID string) (RunTotals, error) {
	return p.store.AggregateTotals(ctx, runID)
}

func (p *PayslipStore) Get(ctx context.Context, orgID, payslipID string) (Payslip, error) {
	return p.store.GetPayslip(ctx, orgID, payslipID)
}

func (p *PayslipStore) ListByRun(ctx context.Context, orgID, runID string) ([]Payslip, error) {
	if _, err := p.store.GetRun(ctx, orgID, runID); err != nil {
		return nil, err
	}
	return p.store.ListPayslipsByRun(ctx, orgID, runID)
}

func (p *PayslipStore) ListByEmployee(ctx context.Context, orgID, employeeID string, limit, offset int) ([]Payslip, error) {
	return p.store.ListPayslipsByEmployee(ctx, orgID, employeeID, limit, offset)
}

func (p *PayslipStore) CountByEmployee(ctx context.Context, orgID, employeeID string) (int, error) {
	return p.store.CountPayslipsByEmployee(ctx, orgID, employeeID)
}
