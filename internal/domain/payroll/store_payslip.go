package payroll

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const runColumns = `r.id, r.period_id, r.run_date, r.status, r.total_employees, r.total_amount, r.notes, r.created_at, r.completed_at`

const payslipColumns = `s.id, s.run_id, s.employee_id, s.gross_pay, s.deductions, s.tax, s.net_pay, s.currency, s.status, s.created_at`

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.PeriodID, &run.RunDate, &run.Status, &run.TotalEmployees, &run.TotalAmount,
		&run.Notes, &run.CreatedAt, &run.CompletedAt)
	return run, err
}

func scanPayslip(row pgx.Row) (Payslip, error) {
	var payslip Payslip
	err := row.Scan(&payslip.ID, &payslip.RunID, &payslip.EmployeeID, &payslip.GrossPay, &payslip.Deductions,
		&payslip.Tax, &payslip.NetPay, &payslip.Currency, &payslip.Status, &payslip.CreatedAt)
	return payslip, err
}

func (s *Store) InsertRun(ctx context.Context, periodID string, opts RunOptions) (Run, error) {
	run, err := scanRun(s.DB.QueryRow(ctx, `
    INSERT INTO payroll_runs AS r (period_id, run_date, status, notes)
    VALUES ($1,$2,$3,$4)
    RETURNING `+runColumns,
		periodID, opts.RunDate, RunStatusProcessing, opts.Notes))
	if err != nil {
		return Run{}, mapStoreError(err, "payroll period", periodID)
	}
	return run, nil
}

func (s *Store) CompleteRun(ctx context.Context, runID string, totals RunTotals) (Run, error) {
	run, err := scanRun(s.DB.QueryRow(ctx, `
    UPDATE payroll_runs AS r
    SET status = $2, total_employees = $3, total_amount = $4, completed_at = now()
    WHERE r.id = $1
    RETURNING `+runColumns,
		runID, RunStatusCompleted, totals.EmployeeCount, totals.TotalAmount))
	if err != nil {
		return Run{}, mapStoreError(err, "payroll run", runID)
	}
	return run, nil
}

func (s *Store) GetRun(ctx context.Context, orgID, runID string) (Run, error) {
	run, err := scanRun(s.DB.QueryRow(ctx, `
    SELECT `+runColumns+`
    FROM payroll_runs r
    JOIN payroll_periods p ON r.period_id = p.id
    WHERE p.organization_id = $1 AND r.id = $2
  `, orgID, runID))
	if err != nil {
		return Run{}, mapStoreError(err, "payroll run", runID)
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, orgID, periodID string) ([]Run, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+runColumns+`
    FROM payroll_runs r
    JOIN payroll_periods p ON r.period_id = p.id
    WHERE p.organization_id = $1 AND r.period_id = $2
    ORDER BY r.created_at DESC
  `, orgID, periodID)
	if err != nil {
		return nil, mapStoreError(err, "payroll period", periodID)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) InsertPayslip(ctx context.Context, payslip Payslip) (Payslip, error) {
	created, err := scanPayslip(s.DB.QueryRow(ctx, `
    INSERT INTO payslips AS s (run_id, employee_id, gross_pay, deductions, tax, net_pay, currency, status)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    RETURNING `+payslipColumns,
		payslip.RunID, payslip.EmployeeID, payslip.GrossPay, payslip.Deductions, payslip.Tax, payslip.NetPay,
		payslip.Currency, payslip.Status))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation && foreignKeyEntity(pgErr.ConstraintName) == "employee" {
			return Payslip{}, &NotFoundError{Entity: "employee", ID: payslip.EmployeeID}
		}
		return Payslip{}, mapStoreError(err, "payroll run", payslip.RunID)
	}
	return created, nil
}

func (s *Store) AggregateTotals(ctx context.Context, runID string) (RunTotals, error) {
	var totals RunTotals
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1), COALESCE(SUM(net_pay), 0)
    FROM payslips
    WHERE run_id = $1
  `, runID).Scan(&totals.EmployeeCount, &totals.TotalAmount); err != nil {
		return RunTotals{}, mapStoreError(err, "payroll run", runID)
	}
	return totals, nil
}

func (s *Store) GetPayslip(ctx context.Context, orgID, payslipID string) (Payslip, error) {
	payslip, err := scanPayslip(s.DB.QueryRow(ctx, `
    SELECT `+payslipColumns+`
    FROM payslips s
    JOIN payroll_runs r ON s.run_id = r.id
    JOIN payroll_periods p ON r.period_id = p.id
    WHERE p.organization_id = $1 AND s.id = $2
  `, orgID, payslipID))
	if err != nil {
		return Payslip{}, mapStoreError(err, "payslip", payslipID)
	}
	return payslip, nil
}

func (s *Store) ListPayslipsByRun(ctx context.Context, orgID, runID string) ([]Payslip, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+payslipColumns+`
    FROM payslips s
    JOIN payroll_runs r ON s.run_id = r.id
    JOIN payroll_periods p ON r.period_id = p.id
    WHERE p.organization_id = $1 AND s.run_id = $2
    ORDER BY s.created_at, s.id
  `, orgID, runID)
	if err != nil {
		return nil, mapStoreError(err, "payroll run", runID)
	}
	defer rows.Close()
	return collectPayslips(rows)
}

func (s *Store) ListPayslipsByEmployee(ctx context.Context, orgID, employeeID string, limit, offset int) ([]Payslip, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+payslipColumns+`
    FROM payslips s
    JOIN payroll_runs r ON s.run_id = r.id
    JOIN payroll_periods p ON r.period_id = p.id
    WHERE p.organization_id = $1 AND s.employee_id = $2
    ORDER BY s.created_at DESC
    LIMIT $3 OFFSET $4
  `, orgID, employeeID, limit, offset)
	if err != nil {
		return nil, mapStoreError(err, "employee", employeeID)
	}
	defer rows.Close()
	return collectPayslips(rows)
}

func (s *Store) CountPayslipsByEmployee(ctx context.Context, orgID, employeeID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM payslips s
    JOIN payroll_runs r ON s.run_id = r.id
    JOIN payroll_periods p ON r.period_id = p.id
    WHERE p.organization_id = $1 AND s.employee_id = $2
  `, orgID, employeeID).Scan(&total); err != nil {
		return 0, mapStoreError(err, "employee", employeeID)
	}
	return total, nil
}

func (s *Store) PayslipDocument(ctx context.Context, orgID, payslipID string) (PayslipDocument, error) {
	var doc PayslipDocument
	payslip := &doc.Payslip
	err := s.DB.QueryRow(ctx, `
    SELECT `+payslipColumns+`,
           e.first_name, e.last_name, e.email,
           p.name, p.start_date, p.end_date, p.payment_date
    FROM payslips s
    JOIN employees e ON s.employee_id = e.id
    JOIN payroll_runs r ON s.run_id = r.id
    JOIN payroll_periods p ON r.period_id = p.id
    WHERE p.organization_id = $1 AND s.id = $2
  `, orgID, payslipID).Scan(&payslip.ID, &payslip.RunID, &payslip.EmployeeID, &payslip.GrossPay, &payslip.Deductions,
		&payslip.Tax, &payslip.NetPay, &payslip.Currency, &payslip.Status, &payslip.CreatedAt,
		&doc.FirstName, &doc.LastName, &doc.Email,
		&doc.PeriodName, &doc.StartDate, &doc.EndDate, &doc.PaymentDate)
	if err != nil {
		return PayslipDocument{}, mapStoreError(err, "payslip", payslipID)
	}
	return doc, nil
}

func collectPayslips(rows pgx.Rows) ([]Payslip, error) {
	var payslips []Payslip
	for rows.Next() {
		payslip, err := scanPayslip(rows)
		if err != nil {
			return nil, err
		}
		payslips = append(payslips, payslip)
	}
	return payslips, rows.Err()
}
