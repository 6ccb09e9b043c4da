package duel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_duel_sessions_started_total",
		Help: "Number of duel sessions started.",
	})

	sessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_duel_sessions_finished_total",
		Help: "Number of duel sessions finished, by result.",
	}, []string{"result"})

	catchUpResolutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_duel_catchup_resolutions_total",
		Help: "Questions resolved via heartbeat catch-up instead of a direct answer event.",
	})

	scoreDrift = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_duel_score_drift_total",
		Help: "Answer events whose cumulative score disagreed with the locally derived one.",
	})

	historyWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_duel_history_write_failures_total",
		Help: "Match results that could not be persisted.",
	})
)
