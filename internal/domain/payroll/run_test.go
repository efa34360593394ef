package payroll_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/domain/payroll/payrolltest"
	"hrpayroll/internal/requestctx"
)

type runFixture struct {
	store        *payrolltest.MemStore
	orchestrator *payroll.Orchestrator
	period       payroll.Period
}

func newRunFixture(t *testing.T) runFixture {
	t.Helper()
	store := payrolltest.New()
	period, err := payroll.NewPeriodManager(store, nil).CreatePeriod(context.Background(), orgID, january())
	require.NoError(t, err)
	orchestrator := payroll.NewOrchestrator(store, store, payroll.FlatTax(decimal.RequireFromString("0.20")), nil)
	orchestrator.Now = func() time.Time { return time.Date(2024, 1, 31, 15, 4, 5, 0, time.UTC) }
	return runFixture{store: store, orchestrator: orchestrator, period: period}
}

type countingMetrics struct {
	completed int
	payslips  int
	failed    int
	skipped   int
}

func (m *countingMetrics) RunCompleted(payslips int) {
	m.completed++
	m.payslips += payslips
}

func (m *countingMetrics) RunFailed() { m.failed++ }

func (m *countingMetrics) EmployeeSkipped() { m.skipped++ }

type recordedJob struct {
	jobType string
	orgID   string
	details any
	err     error
}

type jobRecorder struct {
	jobs []recordedJob
}

func (r *jobRecorder) RunNow(ctx context.Context, jobType, orgID string, run func(context.Context) (any, error)) (any, error) {
	details, err := run(ctx)
	r.jobs = append(r.jobs, recordedJob{jobType: jobType, orgID: orgID, details: details, err: err})
	return details, err
}

func TestCreateRunComputesPayslipsAndTotals(t *testing.T) {
	ctx := context.Background()
	fx := newRunFixture(t)
	ada := fx.store.AddEmployee(orgID, "Ada", "Lovelace", payroll.EmployeeStatusActive)
	fx.store.AddSalary(ada.ID, "72000", payroll.FrequencyAnnual, day("2023-01-01"))
	bob := fx.store.AddEmployee(orgID, "Bob", "Builder", payroll.EmployeeStatusActive)
	fx.store.AddSalary(bob.ID, "72000", payroll.FrequencyAnnual, day("2023-06-01"))
	fx.store.AddBenefit(bob.ID, "200", payroll.BenefitStatusActive)
	fx.store.AddBenefit(bob.ID, "50", payroll.BenefitStatusTerminated)
	inactive := fx.store.AddEmployee(orgID, "Cy", "Gone", "terminated")
	fx.store.AddSalary(inactive.ID, "90000", payroll.FrequencyAnnual, day("2023-01-01"))

	summary, err := fx.orchestrator.CreateRun(ctx, orgID, fx.period.ID, payroll.RunOptions{Notes: "january"})
	require.NoError(t, err)

	run := summary.Run
	assert.Equal(t, payroll.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.TotalEmployees)
	assert.Equal(t, "9400.00", run.TotalAmount.StringFixed(2))
	assert.Equal(t, "january", run.Notes)
	assert.Equal(t, day("2024-01-31"), run.RunDate)
	require.NotNil(t, run.CompletedAt)
	assert.Empty(t, summary.Warnings)

	require.Len(t, summary.Payslips, 2)
	byEmployee := map[string]payroll.Payslip{}
	for _, payslip := range summary.Payslips {
		byEmployee[payslip.EmployeeID] = payslip
		assert.Equal(t, payroll.PayslipStatusGenerated, payslip.Status)
		assert.Equal(t, "USD", payslip.Currency)
		assert.Equal(t, "6000.00", payslip.GrossPay.StringFixed(2))
		assert.Equal(t, "1200.00", payslip.Tax.StringFixed(2))
	}
	assert.Equal(t, "4800.00", byEmployee[ada.ID].NetPay.StringFixed(2))
	assert.Equal(t, "0.00", byEmployee[ada.ID].Deductions.StringFixed(2))
	assert.Equal(t, "4600.00", byEmployee[bob.ID].NetPay.StringFixed(2))
	assert.Equal(t, "200.00", byEmployee[bob.ID].Deductions.StringFixed(2))

	period, err := fx.store.GetPeriod(ctx, orgID, fx.period.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodStatusProcessed, period.Status)
}

func TestCreateRunTotalsMatchStoredPayslips(t *testing.T) {
	ctx := context.Background()
	fx := newRunFixture(t)
	frequencies := map[string]string{
		payroll.FrequencyBiWeekly: "1000",
		payroll.FrequencyWeekly:   "777.77",
		payroll.FrequencyDaily:    "133.33",
		payroll.FrequencyHourly:   "17.19",
	}
	for frequency, amount := range frequencies {
		employee := fx.store.AddEmployee(orgID, frequency, "Worker", payroll.EmployeeStatusActive)
		fx.store.AddSalary(employee.ID, amount, frequency, day("2023-01-01"))
		fx.store.AddBenefit(employee.ID, "10.01", payroll.BenefitStatusActive)
	}

	summary, err := fx.orchestrator.CreateRun(ctx, orgID, fx.period.ID, payroll.RunOptions{})
	require.NoError(t, err)

	stored, err := fx.store.ListPayslipsByRun(ctx, orgID, summary.Run.ID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, payslip := range stored {
		sum = sum.Add(payslip.NetPay)
		assert.True(t, payslip.NetPay.Equal(payslip.GrossPay.Sub(payslip.Deductions).Sub(payslip.Tax)))
	}
	assert.Equal(t, len(stored), summary.Run.TotalEmployees)
	assert.True(t, sum.Equal(summary.Run.TotalAmount), "sum %s total %s", sum, summary.Run.TotalAmount)
}

func TestCreateRunSkipsEmployeesWithoutSalary(t *testing.T) {
	ctx := context.Background()
	fx := newRunFixture(t)
	metrics := &countingMetrics{}
	fx.orchestrator.Metrics = metrics
	paid := fx.store.AddEmployee(orgID, "Paid", "Person", payroll.EmployeeStatusActive)
	fx.store.AddSalary(paid.ID, "3000", payroll.FrequencySemiMonthly, day("2023-01-01"))
	unpaid := fx.store.AddEmployee(orgID, "New", "Hire", payroll.EmployeeStatusActive)

	summary, err := fx.orchestrator.CreateRun(ctx, orgID, fx.period.ID, payroll.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Run.TotalEmployees)
	require.Len(t, summary.Payslips, 1)
	assert.Equal(t, paid.ID, summary.Payslips[0].EmployeeID)
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, unpaid.ID, summary.Warnings[0].EmployeeID)
	assert.Equal(t, payroll.WarningMissingSalary, summary.Warnings[0].Code)

	for _, payslip := range fx.store.Payslips() {
		assert.NotEqual(t, unpaid.ID, payslip.EmployeeID)
	}
	assert.Equal(t, 1, metrics.completed)
	assert.Equal(t, 1, metrics.payslips)
	assert.Equal(t, 1, metrics.skipped)
}

func TestCreateRunUsesLatestSalary(t *testing.T) {
	ctx := context.Background()
	fx := newRunFixture(t)
	employee := fx.store.AddEmployee(orgID, "Raise", "Recipient", payroll.EmployeeStatusActive)
	fx.store.AddSalary(employee.ID, "60000", payroll.FrequencyAnnual, day("2022-01-01"))
	fx.store.AddSalary(employee.ID, "84000", payroll.FrequencyAnnual, day("2023-07-01"))
	fx.store.AddSalary(employee.ID, "66000", payroll.FrequencyAnnual, day("2023-01-01"))

	summary, err := fx.orchestrator.CreateRun(ctx, orgID, fx.period.ID, payroll.RunOptions{})
	require.NoError(t, err)
	require.Len(t, summary.Payslips, 1)
	assert.Equal(t, "7000.00", summary.Payslips[0].GrossPay.StringFixed(2))
}

func TestCreateRunRollsBackOnPayslipFailure(t *testing.T) {
	ctx := context.Background()
	fx := newRunFixture(t)
	metrics := &countingMetrics{}
	fx.orchestrator.Metrics = metrics
	first := fx.store.AddEmployee(orgID, "First", "Employee", payroll.EmployeeStatusActive)
	fx.store.AddSalary(first.ID, "72000", payroll.FrequencyAnnual, day("2023-01-01"))
	second := fx.store.AddEmployee(orgID, "Second", "Employee", payroll.EmployeeStatusActive)
	fx.store.AddSalary(second.ID, "72000", payroll.FrequencyAnnual, day("2023-01-01"))

	boom := errors.New("disk full")
	fx.store.FailInsertPayslip = func(payslip payroll.Payslip) error {
		if payslip.EmployeeID == second.ID {
			return boom
		}
		return nil
	}

	_, err := fx.orchestrator.CreateRun(ctx, orgID, fx.period.ID, payroll.RunOptions{})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, payroll.ErrValidation)

	assert.Empty(t, fx.store.Payslips())
	assert.Empty(t, fx.store.Runs())
	period, err := fx.store.GetPeriod(ctx, orgID, fx.period.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodStatusPending, period.Status)
	assert.Equal(t, 1, fx.store.Rollbacks)
	assert.Equal(t, 0, fx.store.Commits)
	assert.Equal(t, 1, metrics.failed)
}

func TestCreateRunRollsBackWhenEmployeeListingFails(t *testing.T) {
	fx := newRunFixture(t)
	fx.store.FailListEmployees = errors.New("directory unavailable")

	_, err := fx.orchestrator.CreateRun(context.Background(), orgID, fx.period.ID, payroll.RunOptions{})
	require.Error(t, err)
	assert.Empty(t, fx.store.Runs())
}

func TestCreateRunRejectsClosedPeriod(t *testing.T) {
	fx := newRunFixture(t)
	employee := fx.store.AddEmployee(orgID, "Ada", "Lovelace", payroll.EmployeeStatusActive)
	fx.store.AddSalary(employee.ID, "72000", payroll.FrequencyAnnual, day("2023-01-01"))
	fx.store.SetPeriodStatus(fx.period.ID, payroll.PeriodStatusClosed)

	_, err := fx.orchestrator.CreateRun(context.Background(), orgID, fx.period.ID, payroll.RunOptions{})
	require.ErrorIs(t, err, payroll.ErrValidation)
	assert.Empty(t, fx.store.Runs())
	assert.Empty(t, fx.store.Payslips())
	assert.Equal(t, 0, fx.store.Commits+fx.store.Rollbacks)
}

func TestCreateRunUnknownPeriod(t *testing.T) {
	fx := newRunFixture(t)
	_, err := fx.orchestrator.CreateRun(context.Background(), orgID, "missing", payroll.RunOptions{})
	assert.ErrorIs(t, err, payroll.ErrNotFound)

	_, err = fx.orchestrator.CreateRun(context.Background(), "org-2", fx.period.ID, payroll.RunOptions{})
	assert.ErrorIs(t, err, payroll.ErrNotFound)
}

func TestCreateRunRecordsEveryAttempt(t *testing.T) {
	ctx := requestctx.WithActor(requestctx.WithRequestID(context.Background(), "req-42"), "user-9")
	fx := newRunFixture(t)
	jobs := &jobRecorder{}
	fx.orchestrator.Jobs = jobs
	employee := fx.store.AddEmployee(orgID, "Ada", "Lovelace", payroll.EmployeeStatusActive)
	fx.store.AddSalary(employee.ID, "72000", payroll.FrequencyAnnual, day("2023-01-01"))

	summary, err := fx.orchestrator.CreateRun(ctx, orgID, fx.period.ID, payroll.RunOptions{})
	require.NoError(t, err)

	fx.store.FailInsertPayslip = func(payroll.Payslip) error { return errors.New("boom") }
	_, err = fx.orchestrator.CreateRun(ctx, orgID, fx.period.ID, payroll.RunOptions{})
	require.Error(t, err)

	require.Len(t, jobs.jobs, 2)
	assert.Equal(t, payroll.JobPayrollRun, jobs.jobs[0].jobType)
	assert.Equal(t, orgID, jobs.jobs[0].orgID)
	assert.NoError(t, jobs.jobs[0].err)
	details := jobs.jobs[0].details.(map[string]any)
	assert.Equal(t, summary.Run.ID, details["runId"])
	assert.Equal(t, "4800.00", details["totalAmount"])
	assert.Equal(t, "req-42", details["requestId"])
	assert.Equal(t, "user-9", details["actorId"])

	assert.Error(t, jobs.jobs[1].err)
	failed := jobs.jobs[1].details.(map[string]any)
	assert.Equal(t, fx.period.ID, failed["periodId"])
	assert.Contains(t, failed["error"], "boom")
}

func TestRerunOfProcessedPeriodCreatesNewRun(t *testing.T) {
	ctx := context.Background()
	fx := newRunFixture(t)
	employee := fx.store.AddEmployee(orgID, "Ada", "Lovelace", payroll.EmployeeStatusActive)
	fx.store.AddSalary(employee.ID, "72000", payroll.FrequencyAnnual, day("2023-01-01"))

	first, err := fx.orchestrator.CreateRun(ctx, orgID, fx.period.ID, payroll.RunOptions{})
	require.NoError(t, err)
	second, err := fx.orchestrator.CreateRun(ctx, orgID, fx.period.ID, payroll.RunOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Run.ID, second.Run.ID)

	runs, err := fx.orchestrator.ListRuns(ctx, orgID, fx.period.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.Run.ID, runs[0].ID)

	got, err := fx.orchestrator.GetRun(ctx, orgID, first.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalEmployees)
}

func TestRunDateDefaultsToUTCDay(t *testing.T) {
	fx := newRunFixture(t)
	eastern := time.FixedZone("UTC-5", -5*60*60)
	fx.orchestrator.Now = func() time.Time { return time.Date(2024, 1, 31, 21, 30, 0, 0, eastern) }

	summary, err := fx.orchestrator.CreateRun(context.Background(), orgID, fx.period.ID, payroll.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, day("2024-02-01"), summary.Run.RunDate)
}

func TestFailureInsideTransactionIsRunFailure(t *testing.T) {
	ctx := context.Background()
	fx := newRunFixture(t)
	employee := fx.store.AddEmployee(orgID, "Ada", "Lovelace", payroll.EmployeeStatusActive)
	fx.store.AddSalary(employee.ID, "72000", payroll.FrequencyAnnual, day("2023-01-01"))
	fx.store.FailInsertPayslip = func(p payroll.Payslip) error {
		return &payroll.NotFoundError{Entity: "employee", ID: p.EmployeeID}
	}

	_, err := fx.orchestrator.CreateRun(ctx, orgID, fx.period.ID, payroll.RunOptions{})
	require.ErrorIs(t, err, payroll.ErrRunFailed)
	var runErr *payroll.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, fx.period.ID, runErr.PeriodID)
	assert.Equal(t, "process employees", runErr.Step)

	_, err = fx.orchestrator.CreateRun(ctx, orgID, "missing", payroll.RunOptions{})
	require.ErrorIs(t, err, payroll.ErrNotFound)
	assert.NotErrorIs(t, err, payroll.ErrRunFailed)
}

func TestSkippedEmployeeLogCarriesRequestContext(t *testing.T) {
	fx := newRunFixture(t)
	var buf bytes.Buffer
	fx.orchestrator.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	fx.store.AddEmployee(orgID, "No", "Salary", payroll.EmployeeStatusActive)

	ctx := requestctx.WithActor(requestctx.WithRequestID(context.Background(), "req-7"), "user-3")
	summary, err := fx.orchestrator.CreateRun(ctx, orgID, fx.period.ID, payroll.RunOptions{})
	require.NoError(t, err)
	require.Len(t, summary.Warnings, 1)

	var skipped map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] == "payroll run skipped employee" {
			skipped = entry
		}
	}
	require.NotNil(t, skipped)
	assert.Equal(t, "req-7", skipped["requestId"])
	assert.Equal(t, "user-3", skipped["actorId"])
}
