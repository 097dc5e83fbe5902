// Package promsink exposes auth activity as Prometheus counters.
package promsink

import (
	"context"

	auth "github.com/klasshub/go-lms-auth"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink implements auth.ActivitySink by counting events. Register it with
// auth.WithActivitySink (or the social equivalent) to get login, signup,
// and lifecycle metrics for free.
type Sink struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// New creates a sink and registers its collectors. Pass nil to use the
// default registerer.
func New(reg prometheus.Registerer) (*Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Sink{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_activity_events_total",
				Help: "Total number of auth activity events by type.",
			},
			[]string{"event_type", "actor_type"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_status_transitions_total",
				Help: "Total number of account lifecycle transitions.",
			},
			[]string{"from_status", "to_status"},
		),
	}

	if err := reg.Register(s.events); err != nil {
		return nil, err
	}
	if err := reg.Register(s.transitions); err != nil {
		return nil, err
	}

	return s, nil
}

// MustNew is New that panics on registration failure.
func MustNew(reg prometheus.Registerer) *Sink {
	s, err := New(reg)
	if err != nil {
		panic(err)
	}
	return s
}

// Record implements auth.ActivitySink.
func (s *Sink) Record(ctx context.Context, event auth.ActivityEvent) error {
	actorType := event.Actor.Type
	if actorType == "" {
		actorType = "system"
	}

	s.events.WithLabelValues(string(event.EventType), actorType).Inc()

	if event.FromStatus != "" || event.ToStatus != "" {
		s.transitions.WithLabelValues(string(event.FromStatus), string(event.ToStatus)).Inc()
	}

	return nil
}

var _ auth.ActivitySink = (*Sink)(nil)
