package main

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/storyworld-balancer/internal/config"
	"github.com/jwebster45206/storyworld-balancer/internal/services/events"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

// eventMsg carries one session event into the UI
type eventMsg events.Event

// updatesClosedMsg reports that the event source has finished
type updatesClosedMsg struct{}

// waitForUpdate reads the next message from ch. The UI re-issues it after
// every message so the source is drained one event at a time.
func waitForUpdate(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return updatesClosedMsg{}
		}
		return msg
	}
}

// runLocal balances the document at path in process and reports progress
// with the same events a worker publishes
func runLocal(ctx context.Context, cfg config.BalanceConfig, log *slog.Logger, path string, write bool) <-chan tea.Msg {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	out := make(chan tea.Msg, 8)
	sim := rehearsal.Simulator{Options: cfg.Rehearsal(log)}
	session := tuner.NewSession(cfg.Session(), sim, log)
	id := session.ID().String()

	send := func(e events.Event) {
		e.SessionID = id
		select {
		case out <- eventMsg(e):
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(out)
		send(events.Event{Type: events.EventTypeSessionStarted, Path: path})

		w, err := storyworld.Load(path)
		if err != nil {
			send(events.Event{Type: events.EventTypeSessionFailed, Error: err.Error()})
			return
		}
		report, err := session.
			WithObserver(func(it tuner.Iteration) {
				send(events.Event{Type: events.EventTypeIterationDone, Iteration: events.Digest(it)})
			}).
			Run(ctx, w)
		if err != nil {
			send(events.Event{Type: events.EventTypeSessionFailed, Error: err.Error()})
			return
		}
		if write && report.Adjusted() {
			if err := storyworld.Save(path, report.Final); err != nil {
				send(events.Event{Type: events.EventTypeSessionFailed, Error: err.Error()})
				return
			}
			log.Info("Storyworld saved", "path", path)
		}
		send(events.Event{Type: events.EventTypeSessionCompleted, Outcome: report.Outcome})
	}()
	return out
}

// follow relays every session event published on Redis
func follow(ctx context.Context, client *redis.Client, log *slog.Logger) <-chan tea.Msg {
	out := make(chan tea.Msg, 8)
	evs := events.Subscribe(ctx, client, log)
	go func() {
		defer close(out)
		for e := range evs {
			select {
			case out <- eventMsg(e):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
