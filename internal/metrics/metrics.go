// Package metrics defines the engine's Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Session outcomes for SessionsFinished.
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeFailed    = "failed"
)

// Quiz bundles the counters shared by the dispatcher and the session engine.
type Quiz struct {
	PollsSent        *prometheus.CounterVec
	PollSendFailures *prometheus.CounterVec
	Answers          *prometheus.CounterVec
	SessionsStarted  prometheus.Counter
	SessionsFinished *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests rely on.
func New(reg prometheus.Registerer) *Quiz {
	m := &Quiz{
		PollsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizbot_polls_sent_total",
			Help: "Quiz polls delivered to chats.",
		}, []string{"kind"}),
		PollSendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizbot_poll_send_failures_total",
			Help: "Poll dispatches that failed after retries.",
		}, []string{"reason"}),
		Answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizbot_answers_total",
			Help: "Poll answers that changed a score.",
		}, []string{"correct"}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quizbot_sessions_started_total",
			Help: "Quiz sessions started.",
		}),
		SessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizbot_sessions_finished_total",
			Help: "Quiz sessions finished, by outcome.",
		}, []string{"outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quizbot_active_sessions",
			Help: "Sessions currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PollsSent, m.PollSendFailures, m.Answers, m.SessionsStarted, m.SessionsFinished, m.ActiveSessions)
	}
	return m
}
