package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activityEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ems_activity_entries_total",
		Help: "Activity batch entries by outcome.",
	}, []string{"outcome"}) // processed, malformed, inserted

	screenshotUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ems_screenshot_uploads_total",
		Help: "Screenshot upload requests by result.",
	}, []string{"result"}) // stored, rejected, failed

	heartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ems_heartbeats_total",
		Help: "Heartbeat requests accepted.",
	})
)
