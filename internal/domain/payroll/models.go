package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

type Period struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	PaymentDate    time.Time `json:"paymentDate"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PeriodInput carries the fields required to open a new period. Zero dates
// are treated as missing.
type PeriodInput struct {
	Name        string
	StartDate   time.Time
	EndDate     time.Time
	PaymentDate time.Time
}

// PeriodPatch holds optional updates; nil fields keep the stored value.
type PeriodPatch struct {
	Name        *string
	StartDate   *time.Time
	EndDate     *time.Time
	PaymentDate *time.Time
}

type Run struct {
	ID             string          `json:"id"`
	PeriodID       string          `json:"periodId"`
	RunDate        time.Time       `json:"runDate"`
	Status         string          `json:"status"`
	TotalEmployees int             `json:"totalEmployees"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

type RunOptions struct {
	RunDate time.Time
	Notes   string
}

type RunTotals struct {
	EmployeeCount int             `json:"employeeCount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

type RunWarning struct {
	EmployeeID string `json:"employeeId"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

type RunSummary struct {
	Run      Run          `json:"run"`
	Payslips []Payslip    `json:"payslips"`
	Warnings []RunWarning `json:"warnings"`
}

type Payslip struct {
	ID         string          `json:"id"`
	RunID      string          `json:"runId"`
	EmployeeID string          `json:"employeeId"`
	GrossPay   decimal.Decimal `json:"grossPay"`
	Deductions decimal.Decimal `json:"deductions"`
	Tax        decimal.Decimal `json:"tax"`
	NetPay     decimal.Decimal `json:"netPay"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type SalaryRecord struct {
	ID               string          `json:"id"`
	EmployeeID       string          `json:"employeeId"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	SalaryType       string          `json:"salaryType"`
	PaymentFrequency string          `json:"paymentFrequency"`
	EffectiveDate    time.Time       `json:"effectiveDate"`
	CreatedAt        time.Time       `json:"createdAt"`
}

type BenefitEnrollment struct {
	ID             string              `json:"id"`
	EmployeeID     string              `json:"employeeId"`
	PlanID         string              `json:"planId"`
	CostToEmployee decimal.NullDecimal `json:"costToEmployee"`
	Status         string              `json:"status"`
}

type Employee struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Status         string `json:"status"`
}

// PayslipDocument is the denormalised view used to render a payslip PDF.
type PayslipDocument struct {
	Payslip     Payslip
	FirstName   string
	LastName    string
	Email       string
	PeriodName  string
	StartDate   time.Time
	EndDate     time.Time
	PaymentDate time.Time
}
