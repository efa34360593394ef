package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"hrpayroll/internal/requestctx"
)

// RunMetrics receives run outcomes. *metrics.Collector satisfies it.
type RunMetrics interface {
	RunCompleted(payslips int)
	RunFailed()
	EmployeeSkipped()
}

// JobRunner records each attempt of a job outside the caller's transaction.
type JobRunner interface {
	RunNow(ctx context.Context, jobType, orgID string, run func(context.Context) (any, error)) (any, error)
}

// Orchestrator generates payroll runs. A run either commits completely, with
// its payslips and the period status change, or leaves nothing behind.
type Orchestrator struct {
	Tx      Transactor
	Store   StoreAPI
	Tax     TaxFunc
	Jobs    JobRunner
	Metrics RunMetrics
	Logger  *slog.Logger
	Now     func() time.Time
}

func NewOrchestrator(tx Transactor, store StoreAPI, tax TaxFunc, logger *slog.Logger) *Orchestrator {
	if tax == nil {
		tax = FlatTax(decimal.NewFromFloat(DefaultTaxRate))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{Tx: tx, Store: store, Tax: tax, Logger: logger, Now: time.Now}
}

type employeeResult struct {
	Payslip Payslip
	Net     decimal.Decimal
}

// foldResults reduces the ordered per-employee results to run totals.
func foldResults(results []employeeResult) RunTotals {
	totals := RunTotals{TotalAmount: decimal.Zero}
	for _, result := range results {
		totals.EmployeeCount++
		totals.TotalAmount = totals.TotalAmount.Add(result.Net)
	}
	return totals
}

// CreateRun computes and persists one payroll run for the period. Employees
// without a salary are skipped and reported in the summary warnings.
func (o *Orchestrator) CreateRun(ctx context.Context, orgID, periodID string, opts RunOptions) (RunSummary, error) {
	if o.Jobs == nil {
		return o.createRun(ctx, orgID, periodID, opts)
	}
	var summary RunSummary
	_, err := o.Jobs.RunNow(ctx, JobPayrollRun, orgID, func(ctx context.Context) (any, error) {
		var runErr error
		summary, runErr = o.createRun(ctx, orgID, periodID, opts)
		return attemptDetails(ctx, periodID, summary, runErr), runErr
	})
	return summary, err
}

func (o *Orchestrator) createRun(ctx context.Context, orgID, periodID string, opts RunOptions) (RunSummary, error) {
	started := o.now()
	period, err := o.Store.GetPeriod(ctx, orgID, periodID)
	if err != nil {
		o.failed(ctx, orgID, periodID, err)
		return RunSummary{}, err
	}
	if period.Status == PeriodStatusClosed {
		err := closedPeriodError(periodID)
		o.failed(ctx, orgID, periodID, err)
		return RunSummary{}, err
	}
	if opts.RunDate.IsZero() {
		opts.RunDate = started.UTC()
	}
	opts.RunDate = dateOnly(opts.RunDate)

	var summary RunSummary
	err = o.Tx.InTx(ctx, func(store StoreAPI) error {
		var err error
		summary, err = o.runInTx(ctx, store, orgID, periodID, opts)
		return err
	})
	if err != nil {
		o.failed(ctx, orgID, periodID, err)
		return RunSummary{}, err
	}

	if o.Metrics != nil {
		o.Metrics.RunCompleted(len(summary.Payslips))
	}
	o.Logger.With(requestctx.Attrs(ctx)...).Info("payroll run completed",
		"organizationId", orgID,
		"periodId", periodID,
		"runId", summary.Run.ID,
		"employees", summary.Run.TotalEmployees,
		"totalAmount", summary.Run.TotalAmount.StringFixed(moneyPlaces),
		"skipped", len(summary.Warnings),
		"durationMs", o.now().Sub(started).Milliseconds())
	return summary, nil
}

func (o *Orchestrator) runInTx(ctx context.Context, store StoreAPI, orgID, periodID string, opts RunOptions) (RunSummary, error) {
	period, err := store.LockPeriod(ctx, orgID, periodID)
	if err != nil {
		return RunSummary{}, err
	}
	if period.Status == PeriodStatusClosed {
		return RunSummary{}, closedPeriodError(periodID)
	}

	abort := func(step string, err error) (RunSummary, error) {
		return RunSummary{}, &RunError{PeriodID: periodID, Step: step, Err: err}
	}

	run, err := store.InsertRun(ctx, periodID, opts)
	if err != nil {
		return abort("insert run", err)
	}
	employees, err := store.ListActiveEmployees(ctx, orgID)
	if err != nil {
		return abort("list active employees", err)
	}

	results, warnings, err := o.processEmployees(ctx, store, run.ID, employees)
	if err != nil {
		return abort("process employees", err)
	}
	totals := foldResults(results)

	stored, err := NewPayslipStore(store).AggregateTotals(ctx, run.ID)
	if err != nil {
		return abort("aggregate run totals", err)
	}
	if stored.EmployeeCount != totals.EmployeeCount || !stored.TotalAmount.Equal(totals.TotalAmount) {
		return abort("verify run totals", fmt.Errorf("run %s computed %d/%s, stored %d/%s", run.ID,
			totals.EmployeeCount, totals.TotalAmount, stored.EmployeeCount, stored.TotalAmount))
	}

	completed, err := store.CompleteRun(ctx, run.ID, totals)
	if err != nil {
		return abort("complete run", err)
	}
	if err := store.UpdatePeriodStatus(ctx, orgID, periodID, PeriodStatusProcessed); err != nil {
		return abort("mark period processed", err)
	}

	payslips := make([]Payslip, 0, len(results))
	for _, result := range results {
		payslips = append(payslips, result.Payslip)
	}
	return RunSummary{Run: completed, Payslips: payslips, Warnings: warnings}, nil
}

// processEmployees walks employees in order. The first store failure aborts
// the walk so the caller can roll the transaction back.
func (o *Orchestrator) processEmployees(ctx context.Context, store StoreAPI, runID string, employees []Employee) ([]employeeResult, []RunWarning, error) {
	resolver := NewCompensationResolver(store)
	payslips := NewPayslipStore(store)

	results := make([]employeeResult, 0, len(employees))
	warnings := []RunWarning{}
	for _, employee := range employees {
		salary, ok, err := resolver.LatestSalaryFor(ctx, employee.ID)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			warning := RunWarning{
				EmployeeID: employee.ID,
				Code:       WarningMissingSalary,
				Message:    "no salary record on file; employee skipped",
			}
			warnings = append(warnings, warning)
			o.Logger.With(requestctx.Attrs(ctx)...).Warn("payroll run skipped employee", "runId", runID, "employeeId", employee.ID, "code", warning.Code)
			if o.Metrics != nil {
				o.Metrics.EmployeeSkipped()
			}
			continue
		}

		benefits, err := resolver.ActiveBenefitsFor(ctx, employee.ID)
		if err != nil {
			return nil, nil, err
		}
		pay := Compute(salary, benefits, o.Tax)
		payslip, err := payslips.Insert(ctx, Payslip{
			RunID:      runID,
			EmployeeID: employee.ID,
			GrossPay:   pay.Gross,
			Deductions: pay.Deductions,
			Tax:        pay.Tax,
			NetPay:     pay.Net,
			Currency:   salary.Currency,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("insert payslip for employee %s: %w", employee.ID, err)
		}
		results = append(results, employeeResult{Payslip: payslip, Net: pay.Net})
	}
	return results, warnings, nil
}

func (o *Orchestrator) GetRun(ctx context.Context, orgID, runID string) (Run, error) {
	return o.Store.GetRun(ctx, orgID, runID)
}

func (o *Orchestrator) ListRuns(ctx context.Context, orgID, periodID string) ([]Run, error) {
	if _, err := o.Store.GetPeriod(ctx, orgID, periodID); err != nil {
		return nil, err
	}
	return o.Store.ListRuns(ctx, orgID, periodID)
}

func (o *Orchestrator) failed(ctx context.Context, orgID, periodID string, err error) {
	if o.Metrics != nil {
		o.Metrics.RunFailed()
	}
	o.Logger.With(requestctx.Attrs(ctx)...).Error("payroll run failed",
		"organizationId", orgID,
		"periodId", periodID,
		"err", err)
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func closedPeriodError(periodID string) error {
	return &ValidationError{Field: "status", Reason: fmt.Sprintf("payroll period %s is closed", periodID)}
}

func attemptDetails(ctx context.Context, periodID string, summary RunSummary, err error) map[string]any {
	details := map[string]any{"periodId": periodID}
	if requestID := requestctx.RequestID(ctx); requestID != "" {
		details["requestId"] = requestID
	}
	if actor := requestctx.Actor(ctx); actor != "" {
		details["actorId"] = actor
	}
	if err != nil {
		details["error"] = err.Error()
		return details
	}
	details["runId"] = summary.Run.ID
	details["totalEmployees"] = summary.Run.TotalEmployees
	details["totalAmount"] = summary.Run.TotalAmount.StringFixed(moneyPlaces)
	details["skipped"] = len(summary.Warnings)
	return details
}
