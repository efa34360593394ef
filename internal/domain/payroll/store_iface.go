package payroll

import (
	"context"
	"time"
)

type StoreAPI interface {
	InsertPeriod(ctx context.Context, orgID string, input PeriodInput) (Period, error)
	UpdatePeriod(ctx context.Context, period Period) (Period, error)
	GetPeriod(ctx context.Context, orgID, periodID string) (Period, error)
	LockPeriod(ctx context.Context, orgID, periodID string) (Period, error)
	ListPeriods(ctx context.Context, orgID string, limit, offset int) ([]Period, error)
	CountPeriods(ctx context.Context, orgID string) (int, error)
	FindOverlappingPeriod(ctx context.Context, orgID string, start, end time.Time, excludeID string) (string, error)
	UpdatePeriodStatus(ctx context.Context, orgID, periodID, status string) error

	ListActiveEmployees(ctx context.Context, orgID string) ([]Employee, error)
	LatestSalary(ctx context.Context, employeeID string) (SalaryRecord, bool, error)
	ActiveBenefits(ctx context.Context, employeeID string) ([]BenefitEnrollment, error)

	InsertRun(ctx context.Context, periodID string, opts RunOptions) (Run, error)
	CompleteRun(ctx context.Context, runID string, totals RunTotals) (Run, error)
	GetRun(ctx context.Context, orgID, runID string) (Run, error)
	ListRuns(ctx context.Context, orgID, periodID string) ([]Run, error)

	InsertPayslip(ctx context.Context, payslip Payslip) (Payslip, error)
	AggregateTotals(ctx context.Context, runID string) (RunTotals, error)
	GetPayslip(ctx context.Context, orgID, payslipID string) (Payslip, error)
	ListPayslipsByRun(ctx context.Context, orgID, runID string) ([]Payslip, error)
	ListPayslipsByEmployee(ctx context.Context, orgID, employeeID string, limit, offset int) ([]Payslip, error)
	CountPayslipsByEmployee(ctx context.Context, orgID, employeeID string) (int, error)
	PayslipDocument(ctx context.Context, orgID, payslipID string) (PayslipDocument, error)
}

// Transactor runs fn against a StoreAPI bound to one transaction. The
// transaction commits only when fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(store StoreAPI) error) error
}
