package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
)

// SeedEmployee describes one demo employee. An empty SalaryAmount leaves the
// employee without compensation so runs exercise the skip path.
type SeedEmployee struct {
	FirstName        string
	LastName         string
	Email            string
	SalaryAmount     string
	PaymentFrequency string
	BenefitCost      string
}

type SeedResult struct {
	OrganizationID string
	Employees      int
}

var DemoEmployees = []SeedEmployee{
	{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", SalaryAmount: "72000", PaymentFrequency: "annual", BenefitCost: "200"},
	{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", SalaryAmount: "2500", PaymentFrequency: "semi_monthly"},
	{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", SalaryAmount: "25", PaymentFrequency: "hourly", BenefitCost: "75.50"},
	{FirstName: "Edsger", LastName: "Dijkstra", Email: "edsger@example.com"},
}

// Seed creates the organization if missing and idempotently adds the given
// employees with their compensation.
func Seed(ctx context.Context, conn DBTX, orgName string, employees []SeedEmployee) (SeedResult, error) {
	orgID, err := ensureOrganization(ctx, conn, orgName)
	if err != nil {
		return SeedResult{}, err
	}
	planID, err := ensureBenefitPlan(ctx, conn, orgID, "Standard health")
	if err != nil {
		return SeedResult{}, err
	}

	created := 0
	for _, emp := range employees {
		inserted, err := ensureEmployee(ctx, conn, orgID, planID, emp)
		if err != nil {
			return SeedResult{}, err
		}
		if inserted {
			created++
		}
	}
	return SeedResult{OrganizationID: orgID, Employees: created}, nil
}

func ensureOrganization(ctx context.Context, conn DBTX, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("organization name is required")
	}
	var id string
	err := conn.QueryRow(ctx, "SELECT id FROM organizations WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	err = conn.QueryRow(ctx, "INSERT INTO organizations (name) VALUES ($1) RETURNING id", name).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func ensureBenefitPlan(ctx context.Context, conn DBTX, orgID, name string) (string, error) {
	var id string
	err := conn.QueryRow(ctx, "SELECT id FROM benefit_plans WHERE organization_id = $1 AND name = $2", orgID, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	err = conn.QueryRow(ctx, "INSERT INTO benefit_plans (organization_id, name) VALUES ($1, $2) RETURNING id", orgID, name).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func ensureEmployee(ctx context.Context, conn DBTX, orgID, planID string, emp SeedEmployee) (bool, error) {
	var id string
	err := conn.QueryRow(ctx, "SELECT id FROM employees WHERE organization_id = $1 AND email = $2", orgID, emp.Email).Scan(&id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	err = conn.QueryRow(ctx, `
    INSERT INTO employees (organization_id, first_name, last_name, email)
    VALUES ($1, $2, $3, $4)
    RETURNING id
  `, orgID, emp.FirstName, emp.LastName, emp.Email).Scan(&id)
	if err != nil {
		return false, err
	}

	if emp.SalaryAmount != "" {
		if _, err := conn.Exec(ctx, `
      INSERT INTO salary_records (employee_id, amount, payment_frequency, effective_date)
      VALUES ($1, $2::numeric, $3, CURRENT_DATE - INTERVAL '30 days')
    `, id, emp.SalaryAmount, emp.PaymentFrequency); err != nil {
			return false, err
		}
	}
	if emp.BenefitCost != "" {
		if _, err := conn.Exec(ctx, `
      INSERT INTO benefit_enrollments (employee_id, plan_id, cost_to_employee)
      VALUES ($1, $2, $3::numeric)
    `, id, planID, emp.BenefitCost); err != nil {
			return false, err
		}
	}
	return true, nil
}
