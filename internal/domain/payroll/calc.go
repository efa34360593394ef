package payroll

import "github.com/shopspring/decimal"

// TaxFunc computes withholding for a monthly gross amount.
type TaxFunc func(gross decimal.Decimal) decimal.Decimal

// FlatTax withholds a single organisation-wide rate. It is a placeholder for a
// bracketed calculation, not a jurisdictional tax table.
func FlatTax(rate decimal.Decimal) TaxFunc {
	return func(gross decimal.Decimal) decimal.Decimal {
		return gross.Mul(rate)
	}
}

// Breakdown is one employee's pay for a period. Every field is rounded to
// cents on its own before the next one is derived.
type Breakdown struct {
	Gross      decimal.Decimal
	Deductions decimal.Decimal
	Tax        decimal.Decimal
	Net        decimal.Decimal
}

func ProrateToMonthly(amount decimal.Decimal, frequency string) decimal.Decimal {
	switch frequency {
	case FrequencyAnnual:
		return amount.Div(decimal.NewFromInt(monthsPerYear))
	case FrequencySemiMonthly:
		return amount
	case FrequencyBiWeekly:
		return amount.Mul(decimal.NewFromInt(biWeeksPerYear)).Div(decimal.NewFromInt(monthsPerYear))
	case FrequencyWeekly:
		return amount.Mul(decimal.NewFromInt(weeksPerYear)).Div(decimal.NewFromInt(monthsPerYear))
	case FrequencyDaily:
		return amount.Mul(decimal.NewFromInt(workDaysPerMonth))
	case FrequencyHourly:
		return amount.Mul(decimal.NewFromInt(hoursPerWorkDay * workDaysPerMonth))
	default:
		return amount
	}
}

func SumDeductions(benefits []BenefitEnrollment) decimal.Decimal {
	total := decimal.Zero
	for _, benefit := range benefits {
		if benefit.Status != BenefitStatusActive || !benefit.CostToEmployee.Valid {
			continue
		}
		total = total.Add(benefit.CostToEmployee.Decimal)
	}
	return total
}

func NetPay(gross, deductions, tax decimal.Decimal) decimal.Decimal {
	return gross.Sub(deductions).Sub(tax)
}

func Compute(salary SalaryRecord, benefits []BenefitEnrollment, tax TaxFunc) Breakdown {
	if tax == nil {
		tax = FlatTax(decimal.NewFromFloat(DefaultTaxRate))
	}
	gross := roundMoney(ProrateToMonthly(salary.Amount, salary.PaymentFrequency))
	deductions := roundMoney(SumDeductions(benefits))
	withheld := roundMoney(tax(gross))
	return Breakdown{
		Gross:      gross,
		Deductions: deductions,
		Tax:        withheld,
		Net:        roundMoney(NetPay(gross, deductions, withheld)),
	}
}

func roundMoney(value decimal.Decimal) decimal.Decimal {
	return value.Round(moneyPlaces)
}
