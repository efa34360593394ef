package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"hrpayroll/internal/platform/db"
)

const (
	JobPayslipArchive = "payslip_archive"

	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Service records job attempts in job_runs and runs queued jobs on a single
// background worker.
type Service struct {
	DB    db.DBTX
	queue chan job
}

type job struct {
	Type  string
	OrgID string
	Run   func(context.Context) (any, error)
}

func New(conn db.DBTX, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = 128
	}
	return &Service{
		DB:    conn,
		queue: make(chan job, queueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
}

// Enqueue drops the job with a warning when the queue is full.
func (s *Service) Enqueue(jobType, orgID string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, OrgID: orgID, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType, "organizationId", orgID)
		return false
	}
}

// RunNow runs the job on the caller's goroutine and records the attempt. The
// record is written even when run fails.
func (s *Service) RunNow(ctx context.Context, jobType, orgID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, OrgID: orgID, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "organizationId", j.OrgID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (organization_id, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, nullIfEmpty(j.OrgID), j.Type, StatusRunning).Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
	}

	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil || details == nil {
		if marshalErr != nil {
			slog.Warn("job details marshal failed", "err", marshalErr)
		}
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		// The attempt record must survive a cancelled request.
		if _, updErr := s.DB.Exec(context.WithoutCancel(ctx), `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "jobType", j.Type, "err", updErr)
		}
	}
	return details, err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
