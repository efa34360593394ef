// Package payrolltest provides an in-memory payroll store for tests. It keeps
// the same scoping and error semantics as the Postgres store and supports
// transactional rollback.
package payrolltest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hrpayroll/internal/domain/payroll"
)

type state struct {
	periods   map[string]payroll.Period
	employees []payroll.Employee
	salaries  []payroll.SalaryRecord
	benefits  []payroll.BenefitEnrollment
	runs      map[string]payroll.Run
	payslips  []payroll.Payslip
}

func (s state) clone() state {
	out := state{
		periods:   make(map[string]payroll.Period, len(s.periods)),
		employees: append([]payroll.Employee(nil), s.employees...),
		salaries:  append([]payroll.SalaryRecord(nil), s.salaries...),
		benefits:  append([]payroll.BenefitEnrollment(nil), s.benefits...),
		runs:      make(map[string]payroll.Run, len(s.runs)),
		payslips:  append([]payroll.Payslip(nil), s.payslips...),
	}
	for id, period := range s.periods {
		out.periods[id] = period
	}
	for id, run := range s.runs {
		out.runs[id] = run
	}
	return out
}

// MemStore implements payroll.StoreAPI and payroll.Transactor.
type MemStore struct {
	mu    sync.Mutex
	state state
	clock time.Time

	// FailInsertPayslip, when set, is consulted before each payslip insert.
	FailInsertPayslip func(payslip payroll.Payslip) error
	// FailListEmployees, when set, replaces the employee listing result.
	FailListEmployees error

	Commits   int
	Rollbacks int
}

func New() *MemStore {
	return &MemStore{
		state: state{
			periods: map[string]payroll.Period{},
			runs:    map[string]payroll.Run{},
		},
		clock: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp so ordering by creation time
// is deterministic.
func (m *MemStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *MemStore) InTx(ctx context.Context, fn func(store payroll.StoreAPI) error) (err error) {
	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			m.rollback(snapshot)
			panic(p)
		}
		if err != nil {
			m.rollback(snapshot)
			return
		}
		m.mu.Lock()
		m.Commits++
		m.mu.Unlock()
	}()
	return fn(m)
}

func (m *MemStore) rollback(snapshot state) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = snapshot
	m.Rollbacks++
}

func (m *MemStore) AddEmployee(orgID, firstName, lastName, status string) payroll.Employee {
	m.mu.Lock()
	defer m.mu.Unlock()
	employee := payroll.Employee{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		FirstName:      firstName,
		LastName:       lastName,
		Email:          firstName + "." + lastName + "@example.com",
		Status:         status,
	}
	m.state.employees = append(m.state.employees, employee)
	return employee
}

func (m *MemStore) AddSalary(employeeID, amount, frequency string, effective time.Time) payroll.SalaryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := payroll.SalaryRecord{
		ID:               uuid.NewString(),
		EmployeeID:       employeeID,
		Amount:           decimal.RequireFromString(amount),
		Currency:         "USD",
		SalaryType:       "base",
		PaymentFrequency: frequency,
		EffectiveDate:    effective,
		CreatedAt:        m.tick(),
	}
	m.state.salaries = append(m.state.salaries, record)
	return record
}

// AddBenefit enrolls the employee. An empty cost stores a NULL cost.
func (m *MemStore) AddBenefit(employeeID, cost, status string) payroll.BenefitEnrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	benefit := payroll.BenefitEnrollment{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		PlanID:     uuid.NewString(),
		Status:     status,
	}
	if cost != "" {
		benefit.CostToEmployee = decimal.NewNullDecimal(decimal.RequireFromString(cost))
	}
	m.state.benefits = append(m.state.benefits, benefit)
	return benefit
}

// SetPeriodStatus changes a period status directly, as an external actor would.
func (m *MemStore) SetPeriodStatus(periodID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	period := m.state.periods[periodID]
	period.Status = status
	m.state.periods[periodID] = period
}

func (m *MemStore) Payslips() []payroll.Payslip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payroll.Payslip(nil), m.state.payslips...)
}

func (m *MemStore) Runs() []payroll.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]payroll.Run, 0, len(m.state.runs))
	for _, run := range m.state.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })
	return runs
}

func (m *MemStore) InsertPeriod(ctx context.Context, orgID string, input payroll.PeriodInput) (payroll.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.state.periods {
		if existing.OrganizationID == orgID && overlaps(existing, input.StartDate, input.EndDate) {
			return payroll.Period{}, &payroll.OverlapError{}
		}
	}
	now := m.tick()
	period := payroll.Period{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           input.Name,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		PaymentDate:    input.PaymentDate,
		Status:         payroll.PeriodStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.state.periods[period.ID] = period
	return period, nil
}

func (m *MemStore) UpdatePeriod(ctx context.Context, period payroll.Period) (payroll.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.state.periods[period.ID]
	if !ok || current.OrganizationID != period.OrganizationID {
		return payroll.Period{}, &payroll.NotFoundError{Entity: "payroll period", ID: period.ID}
	}
	for id, existing := range m.state.periods {
		if id != period.ID && existing.OrganizationID == period.OrganizationID && overlaps(existing, period.StartDate, period.EndDate) {
			return payroll.Period{}, &payroll.OverlapError{}
		}
	}
	current.Name = period.Name
	current.StartDate = period.StartDate
	current.EndDate = period.EndDate
	current.PaymentDate = period.PaymentDate
	current.UpdatedAt = m.tick()
	m.state.periods[period.ID] = current
	return current, nil
}

func (m *MemStore) GetPeriod(ctx context.Context, orgID, periodID string) (payroll.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	period, ok := m.state.periods[periodID]
	if !ok || period.OrganizationID != orgID {
		return payroll.Period{}, &payroll.NotFoundError{Entity: "payroll period", ID: periodID}
	}
	return period, nil
}

func (m *MemStore) LockPeriod(ctx context.Context, orgID, periodID string) (payroll.Period, error) {
	return m.GetPeriod(ctx, orgID, periodID)
}

func (m *MemStore) ListPeriods(ctx context.Context, orgID string, limit, offset int) ([]payroll.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var periods []payroll.Period
	for _, period := range m.state.periods {
		if period.OrganizationID == orgID {
			periods = append(periods, period)
		}
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].StartDate.After(periods[j].StartDate) })
	return page(periods, limit, offset), nil
}

func (m *MemStore) CountPeriods(ctx context.Context, orgID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, period := range m.state.periods {
		if period.OrganizationID == orgID {
			total++
		}
	}
	return total, nil
}

func (m *MemStore) FindOverlappingPeriod(ctx context.Context, orgID string, start, end time.Time, excludeID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, period := range m.state.periods {
		if id == excludeID || period.OrganizationID != orgID {
			continue
		}
		if overlaps(period, start, end) {
			return id, nil
		}
	}
	return "", nil
}

func (m *MemStore) UpdatePeriodStatus(ctx context.Context, orgID, periodID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	period, ok := m.state.periods[periodID]
	if !ok || period.OrganizationID != orgID {
		return &payroll.NotFoundError{Entity: "payroll period", ID: periodID}
	}
	period.Status = status
	period.UpdatedAt = m.tick()
	m.state.periods[periodID] = period
	return nil
}

func (m *MemStore) ListActiveEmployees(ctx context.Context, orgID string) ([]payroll.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailListEmployees != nil {
		return nil, m.FailListEmployees
	}
	var employees []payroll.Employee
	for _, employee := range m.state.employees {
		if employee.OrganizationID == orgID && employee.Status == payroll.EmployeeStatusActive {
			employees = append(employees, employee)
		}
	}
	return employees, nil
}

func (m *MemStore) LatestSalary(ctx context.Context, employeeID string) (payroll.SalaryRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		latest payroll.SalaryRecord
		found  bool
	)
	for _, record := range m.state.salaries {
		if record.EmployeeID != employeeID {
			continue
		}
		if !found || laterSalary(record, latest) {
			latest = record
			found = true
		}
	}
	return latest, found, nil
}

func laterSalary(a, b payroll.SalaryRecord) bool {
	if !a.EffectiveDate.Equal(b.EffectiveDate) {
		return a.EffectiveDate.After(b.EffectiveDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (m *MemStore) ActiveBenefits(ctx context.Context, employeeID string) ([]payroll.BenefitEnrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var benefits []payroll.BenefitEnrollment
	for _, benefit := range m.state.benefits {
		if benefit.EmployeeID == employeeID && benefit.Status == payroll.BenefitStatusActive {
			benefits = append(benefits, benefit)
		}
	}
	return benefits, nil
}

func (m *MemStore) InsertRun(ctx context.Context, periodID string, opts payroll.RunOptions) (payroll.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.periods[periodID]; !ok {
		return payroll.Run{}, &payroll.NotFoundError{Entity: "payroll period", ID: periodID}
	}
	run := payroll.Run{
		ID:          uuid.NewString(),
		PeriodID:    periodID,
		RunDate:     opts.RunDate,
		Status:      payroll.RunStatusProcessing,
		TotalAmount: decimal.Zero,
		Notes:       opts.Notes,
		CreatedAt:   m.tick(),
	}
	m.state.runs[run.ID] = run
	return run, nil
}

func (m *MemStore) CompleteRun(ctx context.Context, runID string, totals payroll.RunTotals) (payroll.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.state.runs[runID]
	if !ok {
		return payroll.Run{}, &payroll.NotFoundError{Entity: "payroll run", ID: runID}
	}
	completedAt := m.tick()
	run.Status = payroll.RunStatusCompleted
	run.TotalEmployees = totals.EmployeeCount
	run.TotalAmount = totals.TotalAmount
	run.CompletedAt = &completedAt
	m.state.runs[runID] = run
	return run, nil
}

func (m *MemStore) GetRun(ctx context.Context, orgID, runID string) (payroll.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runInOrg(orgID, runID)
	if !ok {
		return payroll.Run{}, &payroll.NotFoundError{Entity: "payroll run", ID: runID}
	}
	return run, nil
}

func (m *MemStore) ListRuns(ctx context.Context, orgID, periodID string) ([]payroll.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var runs []payroll.Run
	for _, run := range m.state.runs {
		if run.PeriodID != periodID {
			continue
		}
		if _, ok := m.runInOrg(orgID, run.ID); ok {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs, nil
}

func (m *MemStore) InsertPayslip(ctx context.Context, payslip payroll.Payslip) (payroll.Payslip, error) {
	if m.FailInsertPayslip != nil {
		if err := m.FailInsertPayslip(payslip); err != nil {
			return payroll.Payslip{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.runs[payslip.RunID]; !ok {
		return payroll.Payslip{}, &payroll.NotFoundError{Entity: "payroll run", ID: payslip.RunID}
	}
	for _, existing := range m.state.payslips {
		if existing.RunID == payslip.RunID && existing.EmployeeID == payslip.EmployeeID {
			return payroll.Payslip{}, errors.New("duplicate payslip for run and employee")
		}
	}
	payslip.ID = uuid.NewString()
	payslip.CreatedAt = m.tick()
	m.state.payslips = append(m.state.payslips, payslip)
	return payslip, nil
}

func (m *MemStore) AggregateTotals(ctx context.Context, runID string) (payroll.RunTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := payroll.RunTotals{TotalAmount: decimal.Zero}
	for _, payslip := range m.state.payslips {
		if payslip.RunID == runID {
			totals.EmployeeCount++
			totals.TotalAmount = totals.TotalAmount.Add(payslip.NetPay)
		}
	}
	return totals, nil
}

func (m *MemStore) GetPayslip(ctx context.Context, orgID, payslipID string) (payroll.Payslip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, payslip := range m.state.payslips {
		if payslip.ID != payslipID {
			continue
		}
		if _, ok := m.runInOrg(orgID, payslip.RunID); ok {
			return payslip, nil
		}
	}
	return payroll.Payslip{}, &payroll.NotFoundError{Entity: "payslip", ID: payslipID}
}

func (m *MemStore) ListPayslipsByRun(ctx context.Context, orgID, runID string) ([]payroll.Payslip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runInOrg(orgID, runID); !ok {
		return nil, nil
	}
	var payslips []payroll.Payslip
	for _, payslip := range m.state.payslips {
		if payslip.RunID == runID {
			payslips = append(payslips, payslip)
		}
	}
	return payslips, nil
}

func (m *MemStore) ListPayslipsByEmployee(ctx context.Context, orgID, employeeID string, limit, offset int) ([]payroll.Payslip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payslips := m.employeePayslips(orgID, employeeID)
	sort.Slice(payslips, func(i, j int) bool { return payslips[i].CreatedAt.After(payslips[j].CreatedAt) })
	return page(payslips, limit, offset), nil
}

func (m *MemStore) CountPayslipsByEmployee(ctx context.Context, orgID, employeeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.employeePayslips(orgID, employeeID)), nil
}

func (m *MemStore) PayslipDocument(ctx context.Context, orgID, payslipID string) (payroll.PayslipDocument, error) {
	payslip, err := m.GetPayslip(ctx, orgID, payslipID)
	if err != nil {
		return payroll.PayslipDocument{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := payroll.PayslipDocument{Payslip: payslip}
	for _, employee := range m.state.employees {
		if employee.ID == payslip.EmployeeID {
			doc.FirstName, doc.LastName, doc.Email = employee.FirstName, employee.LastName, employee.Email
		}
	}
	if run, ok := m.state.runs[payslip.RunID]; ok {
		period := m.state.periods[run.PeriodID]
		doc.PeriodName = period.Name
		doc.StartDate, doc.EndDate, doc.PaymentDate = period.StartDate, period.EndDate, period.PaymentDate
	}
	return doc, nil
}

func (m *MemStore) employeePayslips(orgID, employeeID string) []payroll.Payslip {
	var payslips []payroll.Payslip
	for _, payslip := range m.state.payslips {
		if payslip.EmployeeID != employeeID {
			continue
		}
		if _, ok := m.runInOrg(orgID, payslip.RunID); ok {
			payslips = append(payslips, payslip)
		}
	}
	return payslips
}

// runInOrg must be called with mu held.
func (m *MemStore) runInOrg(orgID, runID string) (payroll.Run, bool) {
	run, ok := m.state.runs[runID]
	if !ok {
		return payroll.Run{}, false
	}
	period, ok := m.state.periods[run.PeriodID]
	if !ok || period.OrganizationID != orgID {
		return payroll.Run{}, false
	}
	return run, true
}

func overlaps(period payroll.Period, start, end time.Time) bool {
	return !period.StartDate.After(end) && !period.EndDate.Before(start)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
