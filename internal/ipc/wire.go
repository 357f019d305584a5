package ipc

import (
	"time"

	"github.com/kamino/squirrel/pkg/types"
)

// wireEvent is the JSON shape of a normalized session event on the wire.
type wireEvent struct {
	TS         time.Time `json:"ts"`
	Role       string    `json:"role"`
	Kind       string    `json:"kind"`
	Summary    string    `json:"summary"`
	ToolName   string    `json:"tool_name,omitempty"`
	File       string    `json:"file,omitempty"`
	RawSnippet string    `json:"raw_snippet,omitempty"`
	IsError    bool      `json:"is_error"`
}

func (w wireEvent) toEvent() types.Event {
	role, _ := types.ParseRole(w.Role)
	kind, _ := types.ParseEventKind(w.Kind)
	return types.Event{
		Timestamp:  w.TS,
		Role:       role,
		Kind:       kind,
		Summary:    w.Summary,
		ToolName:   w.ToolName,
		File:       w.File,
		RawSnippet: w.RawSnippet,
		IsError:    w.IsError,
	}
}

func fromEvent(e types.Event) wireEvent {
	return wireEvent{
		TS: e.Timestamp, Role: string(e.Role), Kind: string(e.Kind),
		Summary: e.Summary, ToolName: e.ToolName, File: e.File,
		RawSnippet: e.RawSnippet, IsError: e.IsError,
	}
}

// wireEpisode is the JSON shape of a computed episode.
type wireEpisode struct {
	ID              string      `json:"id,omitempty"`
	ProjectID       string      `json:"project_id"`
	Events          []wireEvent `json:"events"`
	ErrorCount      int         `json:"error_count"`
	RetryLoops      int         `json:"retry_loops"`
	UserFrustration string      `json:"user_frustration"`
}

func fromEpisode(ep *types.Episode) wireEpisode {
	events := make([]wireEvent, len(ep.Events))
	for i, e := range ep.Events {
		events[i] = fromEvent(e)
	}
	return wireEpisode{
		ID: ep.ID, ProjectID: ep.ProjectID, Events: events,
		ErrorCount: ep.ErrorCount, RetryLoops: ep.RetryLoops,
		UserFrustration: string(ep.UserFrustration),
	}
}

// wireMemory is the JSON shape of a memory on the wire. Similarity is
// only meaningful for search_memories results and compose_context input.
type wireMemory struct {
	ID         string     `json:"id"`
	Scope      string     `json:"scope,omitempty"`
	ProjectID  string     `json:"project_id,omitempty"`
	OwnerType  string     `json:"owner_type,omitempty"`
	OwnerID    string     `json:"owner_id,omitempty"`
	Kind       string     `json:"kind"`
	Tier       string     `json:"tier,omitempty"`
	Polarity   int        `json:"polarity,omitempty"`
	Key        string     `json:"key,omitempty"`
	Text       string     `json:"text"`
	Status     string     `json:"status,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Similarity float64    `json:"similarity,omitempty"`
}

func fromMemory(m *types.Memory, similarity float64) wireMemory {
	return wireMemory{
		ID: m.ID, Scope: string(m.Scope), ProjectID: m.ProjectID,
		OwnerType: string(m.OwnerType), OwnerID: m.OwnerID,
		Kind: string(m.Kind), Tier: string(m.Tier), Polarity: int(m.Polarity),
		Key: m.Key, Text: m.Text, Status: string(m.Status),
		Confidence: m.Confidence, ExpiresAt: m.ExpiresAt, Similarity: similarity,
	}
}

func (w wireMemory) toMemory() *types.Memory {
	kind, _ := types.ParseMemoryKind(w.Kind)
	tier, _ := types.ParseMemoryTier(w.Tier)
	scope, _ := types.ParseScope(w.Scope)
	ownerType, _ := types.ParseOwnerType(w.OwnerType)
	status, _ := types.ParseMemoryStatus(w.Status)
	polarity, _ := types.ParsePolarity(w.Polarity)
	return &types.Memory{
		ID: w.ID, Scope: scope, ProjectID: w.ProjectID, OwnerType: ownerType, OwnerID: w.OwnerID,
		Kind: kind, Tier: tier, Polarity: polarity, Key: w.Key, Text: w.Text,
		Status: status, Confidence: w.Confidence, ExpiresAt: w.ExpiresAt,
	}
}

// wireMetrics is the JSON shape of MemoryMetrics in evaluate_memories input.
type wireMetrics struct {
	UseCount            int        `json:"use_count"`
	Opportunities       int        `json:"opportunities"`
	SuspectedRegretHits int        `json:"suspected_regret_hits"`
	LastUsedAt          *time.Time `json:"last_used_at,omitempty"`
	LastEvaluatedAt     *time.Time `json:"last_evaluated_at,omitempty"`
}

func (w wireMetrics) toMetrics(memoryID string) types.MemoryMetrics {
	return types.MemoryMetrics{
		MemoryID: memoryID, UseCount: w.UseCount, Opportunities: w.Opportunities,
		SuspectedRegretHits: w.SuspectedRegretHits, LastUsedAt: w.LastUsedAt, LastEvaluatedAt: w.LastEvaluatedAt,
	}
}

// wireEvaluateItem is one entry in evaluate_memories' memories[] input.
type wireEvaluateItem struct {
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	Status    string      `json:"status"`
	Tier      string      `json:"tier"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	Metrics   wireMetrics `json:"metrics"`
}

// wireDecision is the JSON shape of a Decision on the wire.
type wireDecision struct {
	MemoryID  string     `json:"memory_id"`
	Result    string     `json:"result"`
	NewStatus string     `json:"new_status,omitempty"`
	NewTier   string     `json:"new_tier,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason"`
}

func fromDecision(d types.Decision) wireDecision {
	return wireDecision{
		MemoryID: d.MemoryID, Result: string(d.Result), NewStatus: string(d.NewStatus),
		NewTier: string(d.NewTier), ExpiresAt: d.ExpiresAt, Reason: d.Reason,
	}
}
