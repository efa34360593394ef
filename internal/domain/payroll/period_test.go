package payroll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/domain/payroll/payrolltest"
)

const orgID = "org-1"

func day(value string) time.Time {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		panic(err)
	}
	return t
}

func january() payroll.PeriodInput {
	return payroll.PeriodInput{
		Name:        "January 2024",
		StartDate:   day("2024-01-01"),
		EndDate:     day("2024-01-31"),
		PaymentDate: day("2024-02-01"),
	}
}

func TestCreatePeriodStartsPending(t *testing.T) {
	store := payrolltest.New()
	manager := payroll.NewPeriodManager(store, nil)

	period, err := manager.CreatePeriod(context.Background(), orgID, january())
	require.NoError(t, err)
	assert.NotEmpty(t, period.ID)
	assert.Equal(t, payroll.PeriodStatusPending, period.Status)
	assert.Equal(t, orgID, period.OrganizationID)
}

func TestCreatePeriodRequiresFields(t *testing.T) {
	manager := payroll.NewPeriodManager(payrolltest.New(), nil)

	cases := map[string]func(*payroll.PeriodInput){
		"name":        func(in *payroll.PeriodInput) { in.Name = "  " },
		"startDate":   func(in *payroll.PeriodInput) { in.StartDate = time.Time{} },
		"endDate":     func(in *payroll.PeriodInput) { in.EndDate = time.Time{} },
		"paymentDate": func(in *payroll.PeriodInput) { in.PaymentDate = time.Time{} },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			input := january()
			mutate(&input)
			_, err := manager.CreatePeriod(context.Background(), orgID, input)
			require.ErrorIs(t, err, payroll.ErrValidation)

			var validation *payroll.ValidationError
			require.True(t, errors.As(err, &validation))
			assert.Equal(t, field, validation.Field)
		})
	}
}

func TestCreatePeriodRejectsInvertedRange(t *testing.T) {
	manager := payroll.NewPeriodManager(payrolltest.New(), nil)
	input := january()
	input.StartDate, input.EndDate = input.EndDate, input.StartDate

	_, err := manager.CreatePeriod(context.Background(), orgID, input)
	assert.ErrorIs(t, err, payroll.ErrValidation)
}

func TestCreatePeriodRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	manager := payroll.NewPeriodManager(payrolltest.New(), nil)
	existing, err := manager.CreatePeriod(ctx, orgID, january())
	require.NoError(t, err)

	cases := map[string][2]string{
		"inside":          {"2024-01-10", "2024-01-20"},
		"covering":        {"2023-12-01", "2024-02-28"},
		"shared end day":  {"2024-01-31", "2024-02-29"},
		"shared start":    {"2023-12-01", "2024-01-01"},
		"identical range": {"2024-01-01", "2024-01-31"},
	}
	for name, dates := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := manager.CreatePeriod(ctx, orgID, payroll.PeriodInput{
				Name: name, StartDate: day(dates[0]), EndDate: day(dates[1]), PaymentDate: day(dates[1]),
			})
			require.ErrorIs(t, err, payroll.ErrOverlap)

			var overlap *payroll.OverlapError
			require.True(t, errors.As(err, &overlap))
			assert.Equal(t, existing.ID, overlap.ConflictingID)
			assert.Equal(t, orgID, overlap.OrganizationID)
		})
	}
}

func TestCreatePeriodAllowsAdjacentAndOtherOrganizations(t *testing.T) {
	ctx := context.Background()
	manager := payroll.NewPeriodManager(payrolltest.New(), nil)
	_, err := manager.CreatePeriod(ctx, orgID, january())
	require.NoError(t, err)

	_, err = manager.CreatePeriod(ctx, orgID, payroll.PeriodInput{
		Name: "February 2024", StartDate: day("2024-02-01"), EndDate: day("2024-02-29"), PaymentDate: day("2024-03-01"),
	})
	require.NoError(t, err)

	_, err = manager.CreatePeriod(ctx, "org-2", january())
	require.NoError(t, err)

	total, err := manager.CountPeriods(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestUpdatePeriodChecksEffectiveRange(t *testing.T) {
	ctx := context.Background()
	manager := payroll.NewPeriodManager(payrolltest.New(), nil)
	jan, err := manager.CreatePeriod(ctx, orgID, january())
	require.NoError(t, err)
	feb, err := manager.CreatePeriod(ctx, orgID, payroll.PeriodInput{
		Name: "February 2024", StartDate: day("2024-02-01"), EndDate: day("2024-02-29"), PaymentDate: day("2024-03-01"),
	})
	require.NoError(t, err)

	// Moving only the end date still overlaps February through the stored start.
	end := day("2024-02-05")
	_, err = manager.UpdatePeriod(ctx, orgID, jan.ID, payroll.PeriodPatch{EndDate: &end})
	require.ErrorIs(t, err, payroll.ErrOverlap)

	// A period never overlaps itself.
	start := day("2024-01-02")
	updated, err := manager.UpdatePeriod(ctx, orgID, jan.ID, payroll.PeriodPatch{StartDate: &start})
	require.NoError(t, err)
	assert.Equal(t, start, updated.StartDate)
	assert.Equal(t, jan.EndDate, updated.EndDate)

	name := "Feb"
	renamed, err := manager.UpdatePeriod(ctx, orgID, feb.ID, payroll.PeriodPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Feb", renamed.Name)
}

func TestUpdatePeriodUnknownID(t *testing.T) {
	manager := payroll.NewPeriodManager(payrolltest.New(), nil)
	name := "x"
	_, err := manager.UpdatePeriod(context.Background(), orgID, "missing", payroll.PeriodPatch{Name: &name})
	assert.ErrorIs(t, err, payroll.ErrNotFound)
}

func TestClosePeriodIsTerminal(t *testing.T) {
	ctx := context.Background()
	manager := payroll.NewPeriodManager(payrolltest.New(), nil)
	period, err := manager.CreatePeriod(ctx, orgID, january())
	require.NoError(t, err)

	closed, err := manager.ClosePeriod(ctx, orgID, period.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodStatusClosed, closed.Status)

	again, err := manager.ClosePeriod(ctx, orgID, period.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodStatusClosed, again.Status)

	name := "renamed"
	_, err = manager.UpdatePeriod(ctx, orgID, period.ID, payroll.PeriodPatch{Name: &name})
	assert.ErrorIs(t, err, payroll.ErrValidation)
}

func TestGetPeriodIsScopedToOrganization(t *testing.T) {
	ctx := context.Background()
	manager := payroll.NewPeriodManager(payrolltest.New(), nil)
	period, err := manager.CreatePeriod(ctx, orgID, january())
	require.NoError(t, err)

	_, err = manager.GetPeriod(ctx, "org-2", period.ID)
	assert.ErrorIs(t, err, payroll.ErrNotFound)
}
