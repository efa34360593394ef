package payroll

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// PeriodManager owns the payroll period lifecycle and keeps the periods of an
// organization from overlapping.
type PeriodManager struct {
	store  StoreAPI
	logger *slog.Logger
}

func NewPeriodManager(store StoreAPI, logger *slog.Logger) *PeriodManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodManager{store: store, logger: logger}
}

func (m *PeriodManager) CreatePeriod(ctx context.Context, orgID string, input PeriodInput) (Period, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.StartDate = dateOnly(input.StartDate)
	input.EndDate = dateOnly(input.EndDate)
	input.PaymentDate = dateOnly(input.PaymentDate)
	if err := validatePeriodInput(orgID, input); err != nil {
		return Period{}, err
	}
	if err := m.ensureNoOverlap(ctx, orgID, input.StartDate, input.EndDate, ""); err != nil {
		return Period{}, err
	}
	period, err := m.store.InsertPeriod(ctx, orgID, input)
	if err != nil {
		return Period{}, withOrganization(err, orgID)
	}
	m.logger.Info("payroll period created", "organizationId", orgID, "periodId", period.ID,
		"startDate", period.StartDate.Format(time.DateOnly), "endDate", period.EndDate.Format(time.DateOnly))
	return period, nil
}

// UpdatePeriod applies patch on top of the stored period. The overlap check
// uses the effective dates and ignores the period itself.
func (m *PeriodManager) UpdatePeriod(ctx context.Context, orgID, periodID string, patch PeriodPatch) (Period, error) {
	current, err := m.store.GetPeriod(ctx, orgID, periodID)
	if err != nil {
		return Period{}, err
	}
	if current.Status == PeriodStatusClosed {
		return Period{}, &ValidationError{Field: "status", Reason: "closed periods cannot be changed"}
	}

	next := current
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.StartDate != nil {
		next.StartDate = dateOnly(*patch.StartDate)
	}
	if patch.EndDate != nil {
		next.EndDate = dateOnly(*patch.EndDate)
	}
	if patch.PaymentDate != nil {
		next.PaymentDate = dateOnly(*patch.PaymentDate)
	}
	input := PeriodInput{Name: next.Name, StartDate: next.StartDate, EndDate: next.EndDate, PaymentDate: next.PaymentDate}
	if err := validatePeriodInput(orgID, input); err != nil {
		return Period{}, err
	}

	if !next.StartDate.Equal(current.StartDate) || !next.EndDate.Equal(current.EndDate) {
		if err := m.ensureNoOverlap(ctx, orgID, next.StartDate, next.EndDate, current.ID); err != nil {
			return Period{}, err
		}
	}

	updated, err := m.store.UpdatePeriod(ctx, next)
	if err != nil {
		return Period{}, withOrganization(err, orgID)
	}
	m.logger.Info("payroll period updated", "organizationId", orgID, "periodId", updated.ID)
	return updated, nil
}

func (m *PeriodManager) GetPeriod(ctx context.Context, orgID, periodID string) (Period, error) {
	return m.store.GetPeriod(ctx, orgID, periodID)
}

func (m *PeriodManager) ListPeriods(ctx context.Context, orgID string, limit, offset int) ([]Period, error) {
	return m.store.ListPeriods(ctx, orgID, limit, offset)
}

func (m *PeriodManager) CountPeriods(ctx context.Context, orgID string) (int, error) {
	return m.store.CountPeriods(ctx, orgID)
}

// ClosePeriod moves a period to its terminal state. Closing an already closed
// period is a no-op.
func (m *PeriodManager) ClosePeriod(ctx context.Context, orgID, periodID string) (Period, error) {
	period, err := m.store.GetPeriod(ctx, orgID, periodID)
	if err != nil {
		return Period{}, err
	}
	if period.Status == PeriodStatusClosed {
		return period, nil
	}
	if err := m.store.UpdatePeriodStatus(ctx, orgID, periodID, PeriodStatusClosed); err != nil {
		return Period{}, err
	}
	m.logger.Info("payroll period closed", "organizationId", orgID, "periodId", periodID, "previousStatus", period.Status)
	return m.store.GetPeriod(ctx, orgID, periodID)
}

func (m *PeriodManager) ensureNoOverlap(ctx context.Context, orgID string, start, end time.Time, excludeID string) error {
	conflictID, err := m.store.FindOverlappingPeriod(ctx, orgID, start, end, excludeID)
	if err != nil {
		return err
	}
	if conflictID != "" {
		return &OverlapError{OrganizationID: orgID, ConflictingID: conflictID}
	}
	return nil
}

func validatePeriodInput(orgID string, input PeriodInput) error {
	switch {
	case strings.TrimSpace(orgID) == "":
		return missing("organizationId")
	case input.Name == "":
		return missing("name")
	case input.StartDate.IsZero():
		return missing("startDate")
	case input.EndDate.IsZero():
		return missing("endDate")
	case input.PaymentDate.IsZero():
		return missing("paymentDate")
	case input.StartDate.After(input.EndDate):
		return &ValidationError{Field: "endDate", Reason: "must not be before startDate"}
	}
	return nil
}

// withOrganization fills in the organization on overlap errors raised by the
// database constraint rather than the pre-check.
func withOrganization(err error, orgID string) error {
	var overlap *OverlapError
	if errors.As(err, &overlap) && overlap.OrganizationID == "" {
		overlap.OrganizationID = orgID
	}
	return err
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
