package episode

import (
	"testing"
	"time"

	"github.com/kamino/squirrel/pkg/types"
)

func TestDetectFrustrationLevels(t *testing.T) {
	cases := []struct {
		msg  string
		want types.Frustration
	}{
		{"this is fine", types.FrustrationNone},
		{"hmm not sure about this", types.FrustrationMild},
		{"why isn't this working??", types.FrustrationModerate},
		{"ugh, finally got somewhere", types.FrustrationModerate},
		{"why won't this compile", types.FrustrationModerate},
		{"this is fucking broken!!", types.FrustrationSevere},
		{"please stop!!!", types.FrustrationSevere},
	}

	for _, c := range cases {
		got := DetectFrustration(c.msg)
		if got != c.want {
			t.Errorf("DetectFrustration(%q) = %s, want %s", c.msg, got, c.want)
		}
	}
}

func TestIsErrorResult(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Error: file not found", true},
		{"Traceback (most recent call last)", true},
		{"Permission denied", true},
		{"build succeeded", false},
		{"", false},
	}

	for _, c := range cases {
		if got := IsErrorResult(c.text); got != c.want {
			t.Errorf("IsErrorResult(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestDetectRetryLoopsCountsSimilarRepeatedErrors(t *testing.T) {
	events := []types.Event{
		{IsError: true, Summary: "error: connection refused to database host db-1"},
		{IsError: true, Summary: "error: connection refused to database host db-2"},
		{IsError: false, Summary: "ran successfully"},
		{IsError: true, Summary: "error: connection refused to database host db-3"},
	}

	got := DetectRetryLoops(events)
	if got != 2 {
		t.Errorf("expected 2 retry loop hits, got %d", got)
	}
}

func TestDetectRetryLoopsIgnoresDissimilarErrors(t *testing.T) {
	events := []types.Event{
		{IsError: true, Summary: "error: connection refused"},
		{IsError: true, Summary: "syntax error in config.yaml line 12"},
	}

	if got := DetectRetryLoops(events); got != 0 {
		t.Errorf("expected 0 retry loop hits for dissimilar errors, got %d", got)
	}
}

func mkEvent(minute int, role types.Role, kind types.EventKind) types.Event {
	base := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	return types.Event{Timestamp: base.Add(time.Duration(minute) * time.Minute), Role: role, Kind: kind, Summary: "x"}
}

func TestSplitEmptyEventsYieldsZeroEpisodes(t *testing.T) {
	got := Split("proj-1", nil)
	if got != nil {
		t.Errorf("expected nil episodes for empty input, got %v", got)
	}
}

func TestSplitDetectsTimeGapBoundary(t *testing.T) {
	events := []types.Event{
		mkEvent(0, types.RoleUser, types.EventMessage),
		mkEvent(1, types.RoleAssistant, types.EventMessage),
		mkEvent(2, types.RoleAssistant, types.EventToolCall),
		mkEvent(3, types.RoleAssistant, types.EventToolResult),
		mkEvent(40, types.RoleUser, types.EventMessage), // 37 min gap from prior
		mkEvent(41, types.RoleAssistant, types.EventMessage),
		mkEvent(42, types.RoleAssistant, types.EventToolCall),
	}

	episodes := Split("proj-1", events)
	if len(episodes) != 2 {
		t.Fatalf("expected 2 episodes from a time-gap split, got %d", len(episodes))
	}
	if len(episodes[0].Events) != 4 {
		t.Errorf("expected first episode to have 4 events, got %d", len(episodes[0].Events))
	}
}

func TestSplitMergesTinyTrailingEpisode(t *testing.T) {
	events := []types.Event{
		mkEvent(0, types.RoleUser, types.EventMessage),
		mkEvent(1, types.RoleAssistant, types.EventMessage),
		mkEvent(2, types.RoleAssistant, types.EventToolCall),
		mkEvent(3, types.RoleAssistant, types.EventToolResult),
		mkEvent(40, types.RoleUser, types.EventMessage), // new boundary but only 1 event follows
	}

	episodes := Split("proj-1", events)
	if len(episodes) != 1 {
		t.Fatalf("expected the tiny trailing episode merged into the first, got %d episodes", len(episodes))
	}
	if len(episodes[0].Events) != 5 {
		t.Errorf("expected merged episode to contain all 5 events, got %d", len(episodes[0].Events))
	}
}

func TestSplitDetectsLongAssistantRunBoundary(t *testing.T) {
	events := []types.Event{mkEvent(0, types.RoleUser, types.EventMessage)}
	for i := 1; i <= 10; i++ {
		events = append(events, mkEvent(i, types.RoleAssistant, types.EventToolCall))
	}
	events = append(events, mkEvent(11, types.RoleUser, types.EventMessage))
	events = append(events, mkEvent(12, types.RoleAssistant, types.EventToolCall))
	events = append(events, mkEvent(13, types.RoleAssistant, types.EventToolCall))

	episodes := Split("proj-1", events)
	if len(episodes) != 2 {
		t.Fatalf("expected a boundary after >=10 consecutive assistant events, got %d episodes", len(episodes))
	}
}

func TestSplitComputesErrorCountAndFrustration(t *testing.T) {
	events := []types.Event{
		mkEvent(0, types.RoleUser, types.EventMessage),
		mkEvent(1, types.RoleAssistant, types.EventToolCall),
		mkEvent(2, types.RoleAssistant, types.EventToolResult),
		mkEvent(3, types.RoleUser, types.EventMessage),
	}
	events[3].Summary = "this is fucking broken!!"
	events[2].IsError = true
	events[2].Summary = "error: build failed"

	episodes := Split("proj-1", events)
	if len(episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(episodes))
	}
	ep := episodes[0]
	if ep.ErrorCount != 1 {
		t.Errorf("expected error_count 1, got %d", ep.ErrorCount)
	}
	if ep.UserFrustration != types.FrustrationSevere {
		t.Errorf("expected severe frustration, got %s", ep.UserFrustration)
	}
}
