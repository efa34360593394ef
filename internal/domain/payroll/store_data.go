package payroll

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

const periodColumns = `id, organization_id, name, start_date, end_date, payment_date, status, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var period Period
	err := row.Scan(&period.ID, &period.OrganizationID, &period.Name, &period.StartDate, &period.EndDate,
		&period.PaymentDate, &period.Status, &period.CreatedAt, &period.UpdatedAt)
	return period, err
}

func (s *Store) InsertPeriod(ctx context.Context, orgID string, input PeriodInput) (Period, error) {
	period, err := scanPeriod(s.DB.QueryRow(ctx, `
    INSERT INTO payroll_periods (organization_id, name, start_date, end_date, payment_date, status)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING `+periodColumns,
		orgID, input.Name, input.StartDate, input.EndDate, input.PaymentDate, PeriodStatusPending))
	if err != nil {
		return Period{}, mapStoreError(err, "organization", orgID)
	}
	return period, nil
}

func (s *Store) UpdatePeriod(ctx context.Context, period Period) (Period, error) {
	updated, err := scanPeriod(s.DB.QueryRow(ctx, `
    UPDATE payroll_periods
    SET name = $3, start_date = $4, end_date = $5, payment_date = $6, updated_at = now()
    WHERE organization_id = $1 AND id = $2
    RETURNING `+periodColumns,
		period.OrganizationID, period.ID, period.Name, period.StartDate, period.EndDate, period.PaymentDate))
	if err != nil {
		return Period{}, mapStoreError(err, "payroll period", period.ID)
	}
	return updated, nil
}

func (s *Store) GetPeriod(ctx context.Context, orgID, periodID string) (Period, error) {
	period, err := scanPeriod(s.DB.QueryRow(ctx, `
    SELECT `+periodColumns+`
    FROM payroll_periods
    WHERE organization_id = $1 AND id = $2
  `, orgID, periodID))
	if err != nil {
		return Period{}, mapStoreError(err, "payroll period", periodID)
	}
	return period, nil
}

// LockPeriod reads the period and holds a row lock until the surrounding
// transaction ends. Outside a transaction it behaves like GetPeriod.
func (s *Store) LockPeriod(ctx context.Context, orgID, periodID string) (Period, error) {
	period, err := scanPeriod(s.DB.QueryRow(ctx, `
    SELECT `+periodColumns+`
    FROM payroll_periods
    WHERE organization_id = $1 AND id = $2
    FOR UPDATE
  `, orgID, periodID))
	if err != nil {
		return Period{}, mapStoreError(err, "payroll period", periodID)
	}
	return period, nil
}

func (s *Store) ListPeriods(ctx context.Context, orgID string, limit, offset int) ([]Period, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+periodColumns+`
    FROM payroll_periods
    WHERE organization_id = $1
    ORDER BY start_date DESC
    LIMIT $2 OFFSET $3
  `, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []Period
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	return periods, rows.Err()
}

func (s *Store) CountPeriods(ctx context.Context, orgID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM payroll_periods WHERE organization_id = $1", orgID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// FindOverlappingPeriod returns the id of any period of the organization whose
// closed [start,end] range intersects the given one, or "" when there is none.
func (s *Store) FindOverlappingPeriod(ctx context.Context, orgID string, start, end time.Time, excludeID string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    SELECT id
    FROM payroll_periods
    WHERE organization_id = $1
      AND start_date <= $3
      AND end_date >= $2
      AND ($4 = '' OR id::text <> $4)
    ORDER BY start_date
    LIMIT 1
  `, orgID, start, end, excludeID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdatePeriodStatus(ctx context.Context, orgID, periodID, status string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_periods SET status = $3, updated_at = now()
    WHERE organization_id = $1 AND id = $2
  `, orgID, periodID, status)
	if err != nil {
		return mapStoreError(err, "payroll period", periodID)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "payroll period", ID: periodID}
	}
	return nil
}

func (s *Store) ListActiveEmployees(ctx context.Context, orgID string) ([]Employee, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, organization_id, first_name, last_name, email, status
    FROM employees
    WHERE organization_id = $1 AND status = $2
    ORDER BY last_name, first_name, id
  `, orgID, EmployeeStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		var employee Employee
		if err := rows.Scan(&employee.ID, &employee.OrganizationID, &employee.FirstName, &employee.LastName, &employee.Email, &employee.Status); err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}
	return employees, rows.Err()
}

func (s *Store) LatestSalary(ctx context.Context, employeeID string) (SalaryRecord, bool, error) {
	var record SalaryRecord
	err := s.DB.QueryRow(ctx, `
    SELECT id, employee_id, amount, currency, salary_type, payment_frequency, effective_date, created_at
    FROM salary_records
    WHERE employee_id = $1
    ORDER BY effective_date DESC, created_at DESC, id DESC
    LIMIT 1
  `, employeeID).Scan(&record.ID, &record.EmployeeID, &record.Amount, &record.Currency, &record.SalaryType,
		&record.PaymentFrequency, &record.EffectiveDate, &record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalaryRecord{}, false, nil
	}
	if err != nil {
		return SalaryRecord{}, false, err
	}
	return record, true, nil
}

func (s *Store) ActiveBenefits(ctx context.Context, employeeID string) ([]BenefitEnrollment, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, employee_id, plan_id, cost_to_employee, status
    FROM benefit_enrollments
    WHERE employee_id = $1 AND status = $2
    ORDER BY created_at, id
  `, employeeID, BenefitStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var benefits []BenefitEnrollment
	for rows.Next() {
		var benefit BenefitEnrollment
		if err := rows.Scan(&benefit.ID, &benefit.EmployeeID, &benefit.PlanID, &benefit.CostToEmployee, &benefit.Status); err != nil {
			return nil, err
		}
		benefits = append(benefits, benefit)
	}
	return benefits, rows.Err()
}
