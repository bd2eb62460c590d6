// Package metrics holds the process-wide Prometheus instruments. They are
// registered on the default registry and exposed by the web server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Bookings counts finished booking runs by terminal status
	// (success, failed, error).
	Bookings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seatsched_bookings_total",
		Help: "Finished booking runs by terminal status.",
	}, []string{"status"})

	// BookingAttempts counts individual booking attempts, including the
	// retries inside a run.
	BookingAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seatsched_booking_attempts_total",
		Help: "Booking attempts, counting retries within a run.",
	})

	// CaptchaRetries counts captcha rounds that had to be retried, whether
	// from short OCR output, solver failure, or portal rejection.
	CaptchaRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seatsched_captcha_retries_total",
		Help: "Captcha rounds that were retried.",
	})

	// JobsScheduled tracks how many jobs currently hold a trigger in the
	// scheduler.
	JobsScheduled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seatsched_jobs_scheduled",
		Help: "Jobs currently registered with the scheduler.",
	})
)
