package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facegate_decisions_total",
		Help: "Access decisions by outcome and reason.",
	}, []string{"outcome", "reason"})

	authorityFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facegate_authority_fallback_total",
		Help: "Remote authority failures that fell back to the local resolver.",
	})

	attendanceRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facegate_attendance_recorded_total",
		Help: "Attendance records created by granted decisions.",
	})
)
