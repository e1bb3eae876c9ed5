package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shield_messages_received_total",
		Help: "Total number of transport messages received, by channel.",
	}, []string{"channel"})

	MetricMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shield_messages_dropped_total",
		Help: "Total number of inbound messages dropped, by reason.",
	}, []string{"reason"})

	MetricReadingsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shield_readings_stored_total",
		Help: "Total number of sensor readings persisted.",
	})

	MetricClassifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shield_classifications_total",
		Help: "Total number of completed classifications, by deciding tier.",
	}, []string{"tier"})

	MetricAlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shield_alerts_raised_total",
		Help: "Total number of alerts created, by severity.",
	}, []string{"severity"})

	MetricPublishFailure = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shield_publish_failure_total",
		Help: "Total number of outbound publish attempts that failed or timed out, by topic kind.",
	}, []string{"kind"})
)
