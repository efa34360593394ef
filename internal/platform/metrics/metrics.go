package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

type Collector struct {
	totalRequests     uint64
	errorRequests     uint64
	totalDurationMs   uint64
	runsCompleted     uint64
	runsFailed        uint64
	payslipsGenerated uint64
	employeesSkipped  uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) RunCompleted(payslips int) {
	atomic.AddUint64(&c.runsCompleted, 1)
	atomic.AddUint64(&c.payslipsGenerated, uint64(payslips))
}

func (c *Collector) RunFailed() {
	atomic.AddUint64(&c.runsFailed, 1)
}

func (c *Collector) EmployeeSkipped() {
	atomic.AddUint64(&c.employeesSkipped, 1)
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":           total,
		"errorsTotal":             atomic.LoadUint64(&c.errorRequests),
		"avgDurationMs":           avg,
		"totalDurationMs":         totalMs,
		"payrollRunsCompleted":    atomic.LoadUint64(&c.runsCompleted),
		"payrollRunsFailed":       atomic.LoadUint64(&c.runsFailed),
		"payslipsGenerated":       atomic.LoadUint64(&c.payslipsGenerated),
		"payrollEmployeesSkipped": atomic.LoadUint64(&c.employeesSkipped),
	}
}

// Families returns the counters as Prometheus metric families, sorted by name.
func (c *Collector) Families() []*dto.MetricFamily {
	return []*dto.MetricFamily{
		counter("hrpayroll_http_request_duration_ms_total", "Cumulative handler time in milliseconds.", atomic.LoadUint64(&c.totalDurationMs)),
		counter("hrpayroll_http_requests_total", "HTTP requests served.", atomic.LoadUint64(&c.totalRequests)),
		counter("hrpayroll_http_server_errors_total", "HTTP requests answered with a 5xx status.", atomic.LoadUint64(&c.errorRequests)),
		counter("hrpayroll_payroll_employees_skipped_total", "Employees skipped for lack of a salary record.", atomic.LoadUint64(&c.employeesSkipped)),
		counter("hrpayroll_payroll_runs_completed_total", "Payroll runs committed.", atomic.LoadUint64(&c.runsCompleted)),
		counter("hrpayroll_payroll_runs_failed_total", "Payroll run attempts that were rejected or rolled back.", atomic.LoadUint64(&c.runsFailed)),
		counter("hrpayroll_payslips_generated_total", "Payslips persisted by committed runs.", atomic.LoadUint64(&c.payslipsGenerated)),
	}
}

func (c *Collector) WriteText(w io.Writer) error {
	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range c.Families() {
		if err := encoder.Encode(family); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the text exposition format.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := c.WriteText(w); err != nil {
			slog.Warn("metrics write failed", "err", err)
		}
	})
}

func counter(name, help string, value uint64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{
			Counter: &dto.Counter{Value: proto.Float64(float64(value))},
		}},
	}
}
