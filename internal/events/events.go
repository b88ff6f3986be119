// Package events carries habit activity out of the habit store: completions,
// retractions and streak milestones.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/logger"
)

// Event describes one habit transition
type Event struct {
	Type       constants.EventType `json:"type"`
	UserID     string              `json:"userId"`
	HabitID    string              `json:"habitId"`
	HabitTitle string              `json:"habitTitle"`
	Streak     int                 `json:"streak"`
	Points     int                 `json:"points,omitempty"`
	Value      float64             `json:"value,omitempty"`
	At         time.Time           `json:"at"`
}

// Sink receives events. Publish failures never undo the transition that
// produced the event.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// LogSink writes events to the application log
type LogSink struct{}

func (LogSink) Publish(_ context.Context, ev Event) error {
	logger.Info("habit event",
		"type", ev.Type,
		"habit", ev.HabitID,
		"title", ev.HabitTitle,
		"streak", ev.Streak,
		"points", ev.Points,
	)
	return nil
}

// Multi fans an event out to every sink and joins their errors
type Multi []Sink

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filter forwards only the listed event types
func Filter(next Sink, types ...constants.EventType) Sink {
	allowed := make(map[constants.EventType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return filtered{next: next, allowed: allowed}
}

type filtered struct {
	next    Sink
	allowed map[constants.EventType]bool
}

func (f filtered) Publish(ctx context.Context, ev Event) error {
	if !f.allowed[ev.Type] {
		return nil
	}
	return f.next.Publish(ctx, ev)
}
