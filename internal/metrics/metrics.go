package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainflow_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trainflow_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// Enrollments counts admission outcomes: admitted, duplicate, full, not_found, error.
	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainflow_enrollment_admissions_total",
		Help: "Enrollment admission attempts by result.",
	}, []string{"result"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainflow_cache_lookups_total",
		Help: "Cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainflow_side_effect_failures_total",
		Help: "Best-effort side effects that failed, by operation.",
	}, []string{"op"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainflow_sweep_runs_total",
		Help: "Scheduled sweep runs by sweep and outcome.",
	}, []string{"sweep", "outcome"})

	SweepReminders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainflow_sweep_reminders_total",
		Help: "Reminders dispatched by scheduled sweeps.",
	}, []string{"sweep"})

	MailMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainflow_mail_messages_total",
		Help: "Outbound mail messages by kind and outcome (queued, sent, failed).",
	}, []string{"kind", "outcome"})
)
