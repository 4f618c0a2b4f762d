package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds all application metrics.
type AppMetrics struct {
	// HTTP Layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// gRPC Layer
	GRPCRequestsTotal   CounterVec
	GRPCRequestDuration HistogramVec

	// Compliance Engine
	EvaluationsTotal   CounterVec
	EvaluationDuration HistogramVec
	OverallScore       GaugeVec
	ServicesByStatus   GaugeVec
	RecurrenceDefaults CounterVec
	FetchErrorsTotal   CounterVec

	// Alerts
	AlertsEvaluatedTotal CounterVec
	AlertsPublishedTotal CounterVec

	// Infrastructure Layer
	DBQueryDuration        HistogramVec
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	MessageProcessDuration HistogramVec
	SnapshotArchivedTotal  CounterVec

	// System Health
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultEngineDurationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1}
	DefaultDBDurationBuckets     = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewAppMetrics registers all metrics and returns AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	// gRPC
	m.GRPCRequestsTotal = collector.RegisterCounter("grpc_requests_total", "Total gRPC requests", "method", "code")
	m.GRPCRequestDuration = collector.RegisterHistogram("grpc_request_duration_seconds", "gRPC request duration", DefaultHTTPDurationBuckets, "method")

	// Compliance engine
	m.EvaluationsTotal = collector.RegisterCounter("evaluations_total", "Compliance derivations run", "operation", "outcome")
	m.EvaluationDuration = collector.RegisterHistogram("evaluation_duration_seconds", "Compliance derivation duration including data fetch", DefaultEngineDurationBuckets, "operation")
	m.OverallScore = collector.RegisterGauge("overall_score_pct", "Last computed overall compliance score per tenant", "tenant")
	m.ServicesByStatus = collector.RegisterGauge("services_by_status", "Services per status in the last computed scorecard", "tenant", "status")
	m.RecurrenceDefaults = collector.RegisterCounter("recurrence_defaulted_total", "Next-due dates predicted with the yearly fallback", "tenant")
	m.FetchErrorsTotal = collector.RegisterCounter("fetch_errors_total", "Snapshot fetch failures", "source")

	// Alerts
	m.AlertsEvaluatedTotal = collector.RegisterCounter("alerts_evaluated_total", "Alert events produced by trigger evaluation", "event")
	m.AlertsPublishedTotal = collector.RegisterCounter("alerts_published_total", "Alert events handed to the broker", "outcome")

	// Infrastructure
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.MessageProcessDuration = collector.RegisterHistogram("mq_process_duration_seconds", "Message processing duration", DefaultHTTPDurationBuckets, "topic")
	m.SnapshotArchivedTotal = collector.RegisterCounter("snapshots_archived_total", "Report snapshots written to object storage", "outcome")

	// System Health
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type")

	return m
}

// NewNoopAppMetrics returns AppMetrics backed by the no-op collector.
func NewNoopAppMetrics() *AppMetrics {
	return NewAppMetrics(NewNoopCollector())
}

// Helpers

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordGRPCRequest(metrics *AppMetrics, method, code string, duration time.Duration) {
	metrics.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	metrics.GRPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordEvaluation counts one engine operation (entity_report, jurisdiction_risk,
// team_efficiency, alerts) and its duration.
func RecordEvaluation(metrics *AppMetrics, operation string, duration time.Duration, err error) {
	metrics.EvaluationsTotal.WithLabelValues(operation, outcome(err)).Inc()
	metrics.EvaluationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordScorecard publishes the headline numbers of a freshly computed
// scorecard.
func RecordScorecard(metrics *AppMetrics, tenant string, overallPct, compliant, overdue, upcoming, notSubscribed, defaulted int) {
	metrics.OverallScore.WithLabelValues(tenant).Set(float64(overallPct))
	metrics.ServicesByStatus.WithLabelValues(tenant, "compliant").Set(float64(compliant))
	metrics.ServicesByStatus.WithLabelValues(tenant, "overdue").Set(float64(overdue))
	metrics.ServicesByStatus.WithLabelValues(tenant, "upcoming").Set(float64(upcoming))
	metrics.ServicesByStatus.WithLabelValues(tenant, "not-subscribed").Set(float64(notSubscribed))
	if defaulted > 0 {
		metrics.RecurrenceDefaults.WithLabelValues(tenant).Add(float64(defaulted))
	}
}

func RecordFetchError(metrics *AppMetrics, source string) {
	metrics.FetchErrorsTotal.WithLabelValues(source).Inc()
	metrics.ErrorsTotal.WithLabelValues(source, "fetch").Inc()
}

func RecordAlerts(metrics *AppMetrics, event string, n int) {
	if n > 0 {
		metrics.AlertsEvaluatedTotal.WithLabelValues(event).Add(float64(n))
	}
}

func RecordAlertPublish(metrics *AppMetrics, n int, err error) {
	metrics.AlertsPublishedTotal.WithLabelValues(outcome(err)).Add(float64(n))
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("kafka", "publish").Inc()
	}
}

func RecordDBQuery(metrics *AppMetrics, operation string, duration time.Duration, err error) {
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("postgres", "query_error").Inc()
	}
}

func RecordCacheAccess(metrics *AppMetrics, cache string, hit bool) {
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordMessage(metrics *AppMetrics, topic string, duration time.Duration, err error) {
	metrics.MessageProcessDuration.WithLabelValues(topic).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(topic, "message").Inc()
	}
}

func RecordSnapshotArchive(metrics *AppMetrics, err error) {
	metrics.SnapshotArchivedTotal.WithLabelValues(outcome(err)).Inc()
}

func SetHealth(metrics *AppMetrics, component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	metrics.HealthCheckStatus.WithLabelValues(component).Set(v)
}

func RecordError(metrics *AppMetrics, component, errorType string) {
	metrics.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
