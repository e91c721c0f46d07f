// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NotificationsTotal counts delivery outcomes per notification event.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemed_notifications_total",
		Help: "Outbound mail notifications by event and outcome.",
	}, []string{"event", "outcome"})

	// LoginsTotal counts login attempts by outcome.
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemed_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	CommentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemed_comments_created_total",
		Help: "Comments stored.",
	})

	HostCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemed_host_cpu_percent",
		Help: "Host CPU usage at the last sample.",
	})

	HostMemoryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemed_host_memory_percent",
		Help: "Host memory usage at the last sample.",
	})

	UploadsBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemed_uploads_bytes",
		Help: "Total size of uploaded files.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
