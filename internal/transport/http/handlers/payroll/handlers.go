package payrollhandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/platform/jobs"
	"hrpayroll/internal/transport/http/api"
	"hrpayroll/internal/transport/http/middleware"
	"hrpayroll/internal/transport/http/shared"
)

// ArchiveQueue accepts background jobs. *jobs.Service satisfies it.
type ArchiveQueue interface {
	Enqueue(jobType, orgID string, run func(context.Context) (any, error)) bool
}

// AuditTrail records payroll mutations. *audit.Service satisfies it.
type AuditTrail interface {
	Record(ctx context.Context, evt audit.Event) error
	List(ctx context.Context, orgID string, filter audit.Filter, limit, offset int) ([]audit.Event, error)
	Count(ctx context.Context, orgID string, filter audit.Filter) (int, error)
}

// Handler serves the payroll API. Idempotency, Archive and Audit are
// optional; nil disables the feature.
type Handler struct {
	Service     *payroll.Service
	Perms       middleware.PermissionStore
	Idempotency *middleware.IdempotencyStore
	Archive     ArchiveQueue
	Audit       AuditTrail
	Logger      *slog.Logger
}

func NewHandler(service *payroll.Service, perms middleware.PermissionStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: service, Perms: perms, Logger: logger}
}

type periodPayload struct {
	Name        string `json:"name"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	PaymentDate string `json:"paymentDate"`
}

type periodPatchPayload struct {
	Name        *string `json:"name"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
	PaymentDate *string `json:"paymentDate"`
}

type runPayload struct {
	RunDate string `json:"runDate"`
	Notes   string `json:"notes"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/periods", h.handleListPeriods)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/periods", h.handleCreatePeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/periods/{periodID}", h.handleGetPeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Patch("/periods/{periodID}", h.handleUpdatePeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollClose, h.Perms)).Post("/periods/{periodID}/close", h.handleClosePeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/periods/{periodID}/runs", h.handleListRuns)
		r.With(middleware.RequirePermission(auth.PermPayrollRun, h.Perms)).Post("/periods/{periodID}/runs", h.handleCreateRun)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}", h.handleGetRun)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}/payslips", h.handleListRunPayslips)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/employees/{employeeID}/payslips", h.handleListEmployeePayslips)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/payslips/{payslipID}", h.handleGetPayslip)
		r.With(middleware.RequirePermission(auth.PermPayslipDownload, h.Perms)).Get("/payslips/{payslipID}/pdf", h.handleDownloadPayslip)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/audit", h.handleListAudit)
	})
}

func (h *Handler) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 50, 200)

	periods, err := h.Service.Periods.ListPeriods(r.Context(), user.OrganizationID, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err, "payroll_periods_failed", "failed to list payroll periods")
		return
	}
	total, err := h.Service.Periods.CountPeriods(r.Context(), user.OrganizationID)
	if err != nil {
		h.fail(w, r, err, "payroll_periods_failed", "failed to count payroll periods")
		return
	}
	api.Page(w, periods, total, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	var payload periodPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	input := payroll.PeriodInput{
		Name:        payload.Name,
		StartDate:   v.OptionalDate("startDate", payload.StartDate),
		EndDate:     v.OptionalDate("endDate", payload.EndDate),
		PaymentDate: v.OptionalDate("paymentDate", payload.PaymentDate),
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	period, err := h.Service.Periods.CreatePeriod(r.Context(), user.OrganizationID, input)
	if err != nil {
		h.fail(w, r, err, "payroll_period_create_failed", "failed to create payroll period")
		return
	}
	h.record(r, audit.ActionPeriodCreate, "payroll_period", period.ID, period)
	api.Created(w, period, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	periodID, ok := h.pathID(w, r, "periodID", "payroll period")
	if !ok {
		return
	}
	period, err := h.Service.Periods.GetPeriod(r.Context(), user.OrganizationID, periodID)
	if err != nil {
		h.fail(w, r, err, "payroll_period_failed", "failed to load payroll period")
		return
	}
	api.Success(w, period, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdatePeriod(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	periodID, ok := h.pathID(w, r, "periodID", "payroll period")
	if !ok {
		return
	}

	var payload periodPatchPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	patch := payroll.PeriodPatch{Name: payload.Name}
	patch.StartDate = patchDate(v, "startDate", payload.StartDate)
	patch.EndDate = patchDate(v, "endDate", payload.EndDate)
	patch.PaymentDate = patchDate(v, "paymentDate", payload.PaymentDate)
	if patch.StartDate != nil && patch.EndDate != nil {
		v.DateOrder("startDate", *patch.StartDate, "endDate", *patch.EndDate)
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	period, err := h.Service.Periods.UpdatePeriod(r.Context(), user.OrganizationID, periodID, patch)
	if err != nil {
		h.fail(w, r, err, "payroll_period_update_failed", "failed to update payroll period")
		return
	}
	h.record(r, audit.ActionPeriodUpdate, "payroll_period", period.ID, period)
	api.Success(w, period, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleClosePeriod(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	periodID, ok := h.pathID(w, r, "periodID", "payroll period")
	if !ok {
		return
	}
	period, err := h.Service.Periods.ClosePeriod(r.Context(), user.OrganizationID, periodID)
	if err != nil {
		h.fail(w, r, err, "payroll_period_close_failed", "failed to close payroll period")
		return
	}
	h.record(r, audit.ActionPeriodClose, "payroll_period", period.ID, period)
	api.Success(w, period, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	periodID, ok := h.pathID(w, r, "periodID", "payroll period")
	if !ok {
		return
	}
	runs, err := h.Service.Runs.ListRuns(r.Context(), user.OrganizationID, periodID)
	if err != nil {
		h.fail(w, r, err, "payroll_runs_failed", "failed to list payroll runs")
		return
	}
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

// handleCreateRun executes a payroll run. A repeated Idempotency-Key with the
// same body replays the stored summary instead of running again.
func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	periodID, ok := h.pathID(w, r, "periodID", "payroll period")
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	var payload runPayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
			return
		}
	}
	v := shared.NewValidator()
	opts := payroll.RunOptions{
		RunDate: v.OptionalDate("runDate", payload.RunDate),
		Notes:   payload.Notes,
	}
	if v.Reject(w, requestID) {
		return
	}

	idempotencyKey := middleware.IdempotencyKey{
		OrganizationID: user.OrganizationID,
		UserID:         user.UserID,
		Endpoint:       "payroll.run",
		Key:            strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	requestHash := middleware.RequestHash(append([]byte(periodID+":"), body...))
	if idempotencyKey.Key != "" {
		stored, found, err := h.Idempotency.Check(r.Context(), idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), requestID)
			return
		}
		if err != nil {
			h.Logger.Warn("idempotency check failed", "err", err, "requestId", requestID)
		}
		if found {
			api.Created(w, json.RawMessage(stored), requestID)
			return
		}
	}

	summary, err := h.Service.Runs.CreateRun(r.Context(), user.OrganizationID, periodID, opts)
	if err != nil {
		h.fail(w, r, err, "payroll_run_failed", "payroll run failed")
		return
	}

	if idempotencyKey.Key != "" {
		if encoded, err := json.Marshal(summary); err == nil {
			if err := h.Idempotency.Save(r.Context(), idempotencyKey, requestHash, encoded); err != nil {
				h.Logger.Warn("idempotency save failed", "err", err, "requestId", requestID)
			}
		}
	}
	h.record(r, audit.ActionRunCreate, "payroll_run", summary.Run.ID, summary.Run)
	h.enqueueArchive(user.OrganizationID, summary.Run.ID)

	api.Created(w, summary, requestID)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	runID, ok := h.pathID(w, r, "runID", "payroll run")
	if !ok {
		return
	}
	run, err := h.Service.Runs.GetRun(r.Context(), user.OrganizationID, runID)
	if err != nil {
		h.fail(w, r, err, "payroll_run_failed", "failed to load payroll run")
		return
	}
	api.Success(w, run, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRunPayslips(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	runID, ok := h.pathID(w, r, "runID", "payroll run")
	if !ok {
		return
	}
	payslips, err := h.Service.Payslips.ListByRun(r.Context(), user.OrganizationID, runID)
	if err != nil {
		h.fail(w, r, err, "payslips_failed", "failed to list payslips")
		return
	}
	api.Success(w, payslips, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListEmployeePayslips(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	employeeID, ok := h.pathID(w, r, "employeeID", "employee")
	if !ok {
		return
	}
	page := shared.ParsePagination(r, 50, 200)

	payslips, err := h.Service.Payslips.ListByEmployee(r.Context(), user.OrganizationID, employeeID, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err, "payslips_failed", "failed to list payslips")
		return
	}
	total, err := h.Service.Payslips.CountByEmployee(r.Context(), user.OrganizationID, employeeID)
	if err != nil {
		h.fail(w, r, err, "payslips_failed", "failed to count payslips")
		return
	}
	api.Page(w, payslips, total, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetPayslip(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	payslipID, ok := h.pathID(w, r, "payslipID", "payslip")
	if !ok {
		return
	}
	payslip, err := h.Service.Payslips.Get(r.Context(), user.OrganizationID, payslipID)
	if err != nil {
		h.fail(w, r, err, "payslip_failed", "failed to load payslip")
		return
	}
	api.Success(w, payslip, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDownloadPayslip(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	payslipID, ok := h.pathID(w, r, "payslipID", "payslip")
	if !ok {
		return
	}
	data, err := h.Service.Documents.Render(r.Context(), user.OrganizationID, payslipID)
	if err != nil {
		h.fail(w, r, err, "payslip_render_failed", "failed to render payslip")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="payslip-`+payslipID+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.Logger.Warn("payslip write failed", "err", err, "payslipId", payslipID)
	}
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	if h.Audit == nil {
		api.Success(w, []audit.Event{}, middleware.GetRequestID(r.Context()))
		return
	}
	page := shared.ParsePagination(r, 100, 500)
	filter := audit.Filter{
		Action:     r.URL.Query().Get("action"),
		EntityType: r.URL.Query().Get("entityType"),
		EntityID:   r.URL.Query().Get("entityId"),
	}

	events, err := h.Audit.List(r.Context(), user.OrganizationID, filter, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err, "audit_failed", "failed to list audit events")
		return
	}
	total, err := h.Audit.Count(r.Context(), user.OrganizationID, filter)
	if err != nil {
		h.fail(w, r, err, "audit_failed", "failed to count audit events")
		return
	}
	api.Page(w, events, total, middleware.GetRequestID(r.Context()))
}

// record appends to the audit trail. Failures are logged and never fail the
// request that already succeeded.
func (h *Handler) record(r *http.Request, action, entityType, entityID string, after any) {
	if h.Audit == nil {
		return
	}
	user, _ := middleware.GetUser(r.Context())
	evt := audit.Event{
		OrganizationID: user.OrganizationID,
		ActorID:        user.UserID,
		Action:         action,
		EntityType:     entityType,
		EntityID:       entityID,
		RequestID:      middleware.GetRequestID(r.Context()),
		IP:             shared.ClientIP(r),
		After:          audit.Payload(after),
	}
	if err := h.Audit.Record(r.Context(), evt); err != nil {
		h.Logger.Warn("audit record failed", "action", action, "err", err, "requestId", evt.RequestID)
	}
}

func (h *Handler) enqueueArchive(orgID, runID string) {
	if h.Archive == nil || h.Service.Documents == nil || runID == "" {
		return
	}
	documents := h.Service.Documents
	h.Archive.Enqueue(jobs.JobPayslipArchive, orgID, func(ctx context.Context) (any, error) {
		return documents.ArchiveRun(ctx, orgID, runID)
	})
}

// pathID reads a UUID path parameter. Malformed ids cannot match a row and
// are reported as not found.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param, entity string) (string, bool) {
	id := chi.URLParam(r, param)
	if !shared.IsUUID(id) {
		api.Fail(w, http.StatusNotFound, "not_found", entity+" "+id+" not found", middleware.GetRequestID(r.Context()))
		return "", false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	requestID := middleware.GetRequestID(r.Context())

	var validation *payroll.ValidationError
	var overlap *payroll.OverlapError
	var notFound *payroll.NotFoundError
	switch {
	case errors.Is(err, payroll.ErrRunFailed):
		h.internal(w, r, err, code, message)
	case errors.As(err, &validation):
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: validation.Field, Reason: validation.Reason}})
	case errors.As(err, &overlap):
		api.FailWithDetails(w, http.StatusConflict, "period_overlap", overlap.Error(),
			map[string]any{"conflictingPeriodId": overlap.ConflictingID}, requestID)
	case errors.As(err, &notFound):
		api.Fail(w, http.StatusNotFound, "not_found", notFound.Error(), requestID)
	default:
		h.internal(w, r, err, code, message)
	}
}

// internal logs the cause and answers with an opaque 500.
func (h *Handler) internal(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	requestID := middleware.GetRequestID(r.Context())
	h.Logger.Error(message, "err", err, "path", r.URL.Path, "requestId", requestID)
	api.Fail(w, http.StatusInternalServerError, code, message, requestID)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func patchDate(v *shared.Validator, field string, raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	parsed := v.OptionalDate(field, *raw)
	if parsed.IsZero() {
		if *raw == "" {
			v.Add(field, "must not be empty")
		}
		return nil
	}
	return &parsed
}
