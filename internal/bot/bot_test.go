package bot

import (
	"testing"
	"time"

	"channelwatch/internal/monitor"
)

func TestMassNames(t *testing.T) {
	got := massNames("raid-", 8, 4, 2)
	want := []string{"raid-08", "raid-09", "raid-10", "raid-11"}
	if len(got) != len(want) {
		t.Fatalf("got %d names", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("name[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	bare := massNames("", 1, 3, 3)
	if bare[0] != "001" || bare[2] != "003" {
		t.Fatalf("bare names = %v", bare)
	}
}

func TestNormalizeMassCreate(t *testing.T) {
	p, err := normalizeMassCreate(massCreateParams{Count: 120})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if p.Start != 1 {
		t.Fatalf("start default = %d", p.Start)
	}
	if p.Padding != 3 {
		t.Fatalf("padding default = %d, want width of 120", p.Padding)
	}

	if _, err := normalizeMassCreate(massCreateParams{Count: 0}); err == nil {
		t.Fatalf("count 0 accepted")
	}
	if _, err := normalizeMassCreate(massCreateParams{Count: 501}); err == nil {
		t.Fatalf("count 501 accepted")
	}
	if _, err := normalizeMassCreate(massCreateParams{Count: 5, Start: -1}); err == nil {
		t.Fatalf("negative start accepted")
	}

	p, err = normalizeMassCreate(massCreateParams{Count: 5, Start: 99, Padding: 1})
	if err != nil {
		t.Fatalf("normalize explicit: %v", err)
	}
	if p.Padding != 1 {
		t.Fatalf("explicit padding overridden: %d", p.Padding)
	}
}

func TestConfirmTarget(t *testing.T) {
	if got := confirmTarget("confirm:12345"); got != "12345" {
		t.Fatalf("target = %q", got)
	}
}

func TestUserMention(t *testing.T) {
	if got := userMention("444555666777888999"); got != "<@444555666777888999>" {
		t.Fatalf("mention = %q", got)
	}
	if got := userMention(""); got != "unknown" {
		t.Fatalf("empty mention = %q", got)
	}
}

func TestParseListState(t *testing.T) {
	state := parseListState("list:3:alerts")
	if state.Page != 3 || state.Sort != "alerts" {
		t.Fatalf("state = %+v", state)
	}

	state = parseListState("list:bad:nope")
	if state.Page != 0 || state.Sort != "name" {
		t.Fatalf("fallback state = %+v", state)
	}

	if got := state.customID(2); got != "list:2:name" {
		t.Fatalf("custom id = %q", got)
	}
	if got := state.nextSort(); got != "last" {
		t.Fatalf("next sort = %q", got)
	}
}

func TestSortEntries(t *testing.T) {
	early := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	entries := []listEntry{
		{ChannelID: "1", Name: "zebra", Last: &late, AlertCount: 1},
		{ChannelID: "2", Name: "alpha", Last: &early, AlertCount: 3},
		{ChannelID: "3", Name: "mid", AlertCount: 0},
	}

	sortEntries(entries, "name")
	if entries[0].Name != "alpha" || entries[2].Name != "zebra" {
		t.Fatalf("name sort = %v %v %v", entries[0].Name, entries[1].Name, entries[2].Name)
	}

	sortEntries(entries, "last")
	if entries[0].ChannelID != "2" || entries[2].ChannelID != "3" {
		t.Fatalf("last sort order wrong: %v", entries)
	}

	sortEntries(entries, "alerts")
	if entries[0].AlertCount != 3 {
		t.Fatalf("alert sort order wrong: %v", entries)
	}
}

func TestBulkSummaries(t *testing.T) {
	add := addSummary(monitor.BulkResult{Added: []string{"1"}, Already: []string{"2"}})
	if add == "" || add == "Nothing selected." {
		t.Fatalf("add summary = %q", add)
	}
	if got := addSummary(monitor.BulkResult{}); got != "Nothing selected." {
		t.Fatalf("empty add summary = %q", got)
	}

	rem := removeSummary(monitor.BulkResult{Removed: []string{"1"}, Preserved: []string{"1"}})
	if rem == "" || rem == "Nothing selected." {
		t.Fatalf("remove summary = %q", rem)
	}
}
