package history

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestAddAndListEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	events := []Event{
		{GuildID: "g1", ChannelID: "c1", Event: "alert", Detail: "5m 1s", CreatedAt: now.Add(-time.Hour)},
		{GuildID: "g1", ChannelID: "c1", Event: "confirm", Detail: "alice", CreatedAt: now.Add(-30 * time.Minute)},
		{GuildID: "g2", ChannelID: "c9", Event: "alert", Detail: "7m 0s", CreatedAt: now},
	}
	for _, event := range events {
		if err := store.AddEvent(ctx, event); err != nil {
			t.Fatalf("add event: %v", err)
		}
	}

	got, err := store.ListEvents(ctx, "g1", now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Event != "confirm" {
		t.Fatalf("expected newest first, got %q", got[0].Event)
	}

	got, err = store.ListEvents(ctx, "g1", now.Add(-40*time.Minute))
	if err != nil {
		t.Fatalf("list events with cutoff: %v", err)
	}
	if len(got) != 1 || got[0].Event != "confirm" {
		t.Fatalf("cutoff result = %+v", got)
	}
}

func TestBuildReport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	seed := []Event{
		{GuildID: "g1", ChannelID: "c1", Event: "alert", CreatedAt: now},
		{GuildID: "g1", ChannelID: "c1", Event: "alert", CreatedAt: now},
		{GuildID: "g1", ChannelID: "c2", Event: "confirm", CreatedAt: now},
		{GuildID: "g2", ChannelID: "c3", Event: "alert", CreatedAt: now},
	}
	for _, event := range seed {
		if err := store.AddEvent(ctx, event); err != nil {
			t.Fatalf("add event: %v", err)
		}
	}

	report, err := store.BuildReport(ctx, "g1", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.Total != 3 {
		t.Fatalf("total = %d", report.Total)
	}
	if report.ByEvent["alert"] != 2 || report.ByEvent["confirm"] != 1 {
		t.Fatalf("by event = %v", report.ByEvent)
	}
	if report.ByChannel["c1"] != 2 || report.ByChannel["c2"] != 1 {
		t.Fatalf("by channel = %v", report.ByChannel)
	}
}

func TestCleanup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := Event{GuildID: "g1", ChannelID: "c1", Event: "alert", CreatedAt: time.Now().AddDate(0, 0, -40)}
	fresh := Event{GuildID: "g1", ChannelID: "c1", Event: "alert", CreatedAt: time.Now()}
	if err := store.AddEvent(ctx, old); err != nil {
		t.Fatalf("add old: %v", err)
	}
	if err := store.AddEvent(ctx, fresh); err != nil {
		t.Fatalf("add fresh: %v", err)
	}

	if err := store.Cleanup(ctx, 30); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	events, err := store.ListEvents(ctx, "g1", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after cleanup, got %d", len(events))
	}
}
