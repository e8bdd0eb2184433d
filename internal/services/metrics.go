package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_messages_appended_total",
			Help: "Messages persisted to inquiry threads, by sender role.",
		},
		[]string{"role"},
	)
	threadsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_threads_created_total",
			Help: "Inquiry threads created, by recipient type.",
		},
		[]string{"recipient"},
	)
	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_status_transitions_total",
			Help: "Accepted thread status changes, by target status.",
		},
		[]string{"status"},
	)
	storageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_storage_failures_total",
			Help: "Store operations that failed with an I/O error.",
		},
		[]string{"op"},
	)
)
