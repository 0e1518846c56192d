package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	LoginAttempts  *prometheus.CounterVec
	ImportedRows   *prometheus.CounterVec
	ExportsCreated *prometheus.CounterVec
	BulkActions    *prometheus.CounterVec
	RuleAssigned   prometheus.Counter
	ContactsSent   *prometheus.CounterVec

	// Background job metrics
	DuplicateGroups *prometheus.GaugeVec
	JobRuns         *prometheus.CounterVec

	// Database metrics
	DBConnections prometheus.Gauge
}

// New creates a new Metrics instance registered on reg. Tests pass a fresh
// prometheus.NewRegistry(); the server passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		LoginAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"status"}, // success, failed
		),
		ImportedRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_import_rows_total",
				Help: "CSV import rows by outcome",
			},
			[]string{"result"}, // imported, skipped
		),
		ExportsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_exports_total",
				Help: "Total number of lead exports",
			},
			[]string{"format"},
		),
		BulkActions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_bulk_actions_total",
				Help: "Leads affected by bulk actions",
			},
			[]string{"action"},
		),
		RuleAssigned: f.NewCounter(prometheus.CounterOpts{
			Name: "lead_rule_assignments_total",
			Help: "Leads assigned by assignment rules",
		}),
		ContactsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_contacts_total",
				Help: "Outbound lead contacts by channel and outcome",
			},
			[]string{"channel", "result"},
		),

		DuplicateGroups: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lead_duplicate_groups",
				Help: "Duplicate groups found by the last scan",
			},
			[]string{"kind"}, // email, phone, name
		),
		JobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "job_runs_total",
				Help: "Background job runs by outcome",
			},
			[]string{"job", "result"},
		),

		DBConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		}),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			// Route pattern, not the raw path, keeps label cardinality bounded.
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method
			m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// RecordLoginAttempt increments login attempts counter
func (m *Metrics) RecordLoginAttempt(success bool) {
	status := "failed"
	if success {
		status = "success"
	}
	m.LoginAttempts.WithLabelValues(status).Inc()
}

// RecordImport adds the outcome of a CSV import.
func (m *Metrics) RecordImport(imported, skipped int) {
	m.ImportedRows.WithLabelValues("imported").Add(float64(imported))
	m.ImportedRows.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordExport increments exports created counter
func (m *Metrics) RecordExport(format string) {
	m.ExportsCreated.WithLabelValues(format).Inc()
}

// RecordBulkAction adds the leads affected by a bulk action.
func (m *Metrics) RecordBulkAction(action string, affected int) {
	m.BulkActions.WithLabelValues(action).Add(float64(affected))
}

// RecordRuleAssignments adds leads assigned by a rule run.
func (m *Metrics) RecordRuleAssignments(n int) {
	m.RuleAssigned.Add(float64(n))
}

// RecordContact counts an outbound message attempt.
func (m *Metrics) RecordContact(channel string, ok bool) {
	result := "failed"
	if ok {
		result = "sent"
	}
	m.ContactsSent.WithLabelValues(channel, result).Inc()
}

// SetDuplicateGroups publishes the group counts of a duplicate scan.
func (m *Metrics) SetDuplicateGroups(email, phone, name int) {
	m.DuplicateGroups.WithLabelValues("email").Set(float64(email))
	m.DuplicateGroups.WithLabelValues("phone").Set(float64(phone))
	m.DuplicateGroups.WithLabelValues("name").Set(float64(name))
}

// RecordJobRun counts one background job execution.
func (m *Metrics) RecordJobRun(job string, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
}

// UpdateDBConnections updates open database connections gauge
func (m *Metrics) UpdateDBConnections(count int) {
	m.DBConnections.Set(float64(count))
}
