package types

import "time"

// Memory is the central entity: a durable behavioral rule an assistant
// should respect in future sessions.
type Memory struct {
	ID        string    `json:"id"`
	Scope     Scope     `json:"scope"`
	ProjectID string    `json:"project_id,omitempty"` // required iff Scope == ScopeProject
	OwnerType OwnerType `json:"owner_type"`
	OwnerID   string    `json:"owner_id"`

	Kind     MemoryKind `json:"kind"`
	Tier     MemoryTier `json:"tier"`
	Polarity Polarity   `json:"polarity"`

	Key  string `json:"key,omitempty"` // declarative slot, e.g. "project.http.client"
	Text string `json:"text"`          // human-readable rule, the field that gets embedded

	Status     MemoryStatus `json:"status"`
	Confidence float64      `json:"confidence"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Embedding is the packed little-endian float32 vector as stored on
	// disk; nil when embedding generation failed or hasn't run yet.
	Embedding []byte `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Evidence links a memory to the episode that produced it.
type Evidence struct {
	ID          string         `json:"id"`
	MemoryID    string         `json:"memory_id"`
	EpisodeID   string         `json:"episode_id"`
	Source      EvidenceSource `json:"source"`
	Frustration Frustration    `json:"frustration"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MemoryMetrics are per-memory usage counters, 1:1 with Memory.
type MemoryMetrics struct {
	MemoryID             string     `json:"memory_id"`
	UseCount             int        `json:"use_count"`
	Opportunities        int        `json:"opportunities"`
	SuspectedRegretHits  int        `json:"suspected_regret_hits"`
	EstimatedRegretSaved float64    `json:"estimated_regret_saved"`
	LastUsedAt           *time.Time `json:"last_used_at,omitempty"`
	LastEvaluatedAt      *time.Time `json:"last_evaluated_at,omitempty"`
}

// UseRatio returns use_count/opportunities, defining 0/0 as 0.
func (m MemoryMetrics) UseRatio() float64 {
	if m.Opportunities == 0 {
		return 0
	}
	return float64(m.UseCount) / float64(m.Opportunities)
}

// Episode is a bounded slice of a session with aggregate stats.
type Episode struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Events          []Event   `json:"events"`
	ErrorCount      int       `json:"error_count"`
	RetryLoops      int       `json:"retry_loops"`
	UserFrustration Frustration `json:"user_frustration"`
	Processed       bool      `json:"processed"`
	CreatedAt       time.Time `json:"created_at"`
}

// Event is a single normalized session event.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	Role       Role      `json:"role"`
	Kind       EventKind `json:"kind"`
	Summary    string    `json:"summary"`
	ToolName   string    `json:"tool_name,omitempty"`
	File       string    `json:"file,omitempty"`
	RawSnippet string    `json:"raw_snippet,omitempty"`
	IsError    bool      `json:"is_error"`
}

// MemoryOp is a single change the extractor wants committed. Op selects
// which fields are used: add uses the content fields, update uses TargetID
// and the content fields, deprecate uses TargetID only.
type MemoryOp struct {
	Op         OpType     `json:"op"`
	TargetID   string     `json:"target_id,omitempty"` // required for update/deprecate
	Scope      Scope      `json:"scope,omitempty"`
	ProjectID  string     `json:"project_id,omitempty"`
	OwnerType  OwnerType  `json:"owner_type,omitempty"`
	OwnerID    string     `json:"owner_id,omitempty"`
	Kind       MemoryKind `json:"kind,omitempty"`
	Tier       MemoryTier `json:"tier,omitempty"`
	Polarity   Polarity   `json:"polarity,omitempty"`
	Key        string     `json:"key,omitempty"`
	Text       string     `json:"text,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`

	Source      EvidenceSource `json:"source,omitempty"`
	Frustration Frustration    `json:"frustration,omitempty"`
}

// Decision is the CR-Memory evaluator's verdict for a single memory.
type Decision struct {
	MemoryID  string       `json:"memory_id"`
	Result    EvalResult   `json:"result"`
	NewStatus MemoryStatus `json:"new_status,omitempty"`
	NewTier   MemoryTier   `json:"new_tier,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	Reason    string       `json:"reason"`
}
