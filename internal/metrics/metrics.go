// Package metrics exposes the Prometheus instrumentation shared across the
// agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts completed conversation turns by outcome ("ok" or
	// "error").
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_turns_total",
		Help: "Conversation turns processed, by outcome.",
	}, []string{"outcome"})

	// ActionsTotal counts dispatched device actions by action name and
	// status ("ok" or "failed").
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_actions_total",
		Help: "Device actions dispatched, by action and status.",
	}, []string{"action", "status"})

	// ResponseFormatTotal counts model responses by detected dialect.
	ResponseFormatTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_response_format_total",
		Help: "Model responses normalized, by detected format.",
	}, []string{"format"})
)
