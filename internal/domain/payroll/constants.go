package payroll

const (
	PeriodStatusPending   = "pending"
	PeriodStatusProcessed = "processed"
	PeriodStatusClosed    = "closed"

	RunStatusProcessing = "processing"
	RunStatusCompleted  = "completed"

	PayslipStatusGenerated = "generated"

	BenefitStatusActive     = "active"
	BenefitStatusTerminated = "terminated"

	EmployeeStatusActive = "active"

	FrequencyAnnual      = "annual"
	FrequencySemiMonthly = "semi_monthly"
	FrequencyBiWeekly    = "bi_weekly"
	FrequencyWeekly      = "weekly"
	FrequencyDaily       = "daily"
	FrequencyHourly      = "hourly"

	WarningMissingSalary = "missing_salary"

	JobPayrollRun = "payroll_run"
)

const (
	workDaysPerMonth = 22
	hoursPerWorkDay  = 8
	monthsPerYear    = 12
	biWeeksPerYear   = 26
	weeksPerYear     = 52
	moneyPlaces      = 2
)

// DefaultTaxRate is the flat withholding rate used when none is configured.
const DefaultTaxRate = 0.20

var Frequencies = []string{
	FrequencyAnnual,
	FrequencySemiMonthly,
	FrequencyBiWeekly,
	FrequencyWeekly,
	FrequencyDaily,
	FrequencyHourly,
}
