package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kamino/squirrel/internal/commit"
	"github.com/kamino/squirrel/internal/episode"
	"github.com/kamino/squirrel/internal/extractor"
	"github.com/kamino/squirrel/internal/retrieval"
	"github.com/kamino/squirrel/internal/storage"
	"github.com/kamino/squirrel/pkg/types"
)

// embedTextParams/Result: {text} -> {embedding}
type embedTextParams struct {
	Text string `json:"text"`
}

type embedTextResult struct {
	Embedding []float32 `json:"embedding"`
}

func (s *Server) handleEmbedText(ctx context.Context, raw json.RawMessage) (interface{}, *JSONRPCError) {
	var p embedTextParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if isBlank(p.Text) {
		return nil, appErr(ErrCodeEmptyText, "text must not be empty")
	}
	vec, err := s.embedder.Embed(ctx, p.Text)
	if err != nil {
		return nil, appErr(ErrCodeEmbeddingFailed, err.Error())
	}
	return embedTextResult{Embedding: vec}, nil
}

// ingestChunkParams/Result: events in, episodes+committed memories out.
//
// carry_state threads leftover trailing events across chunk boundaries: a
// caller streaming a long session in fixed-size chunks passes back the
// carry_state it received from call N when it makes call N+1, so the
// chunker sees the tail of the previous chunk glued to the head of the
// next one and can still detect a boundary (time gap, assistant run)
// that straddles the cut. It is an opaque JSON array of wireEvent and
// callers must not interpret it.
type ingestChunkParams struct {
	ProjectID      string          `json:"project_id"`
	OwnerType      string          `json:"owner_type"`
	OwnerID        string          `json:"owner_id"`
	ChunkIndex     int             `json:"chunk_index"`
	Events         []wireEvent     `json:"events"`
	CarryState     json.RawMessage `json:"carry_state,omitempty"`
	RecentMemories []wireMemory    `json:"recent_memories,omitempty"`
}

type ingestChunkResult struct {
	Episodes      []wireEpisode   `json:"episodes"`
	Memories      []wireMemory    `json:"memories"`
	CarryState    json.RawMessage `json:"carry_state"`
	DiscardReason string          `json:"discard_reason,omitempty"`
}

// carryStateTailSize is the number of trailing events handed back as the
// next call's carry_state: enough to let a 30-minute time-gap boundary or
// a 10-event assistant run be detected once the next chunk arrives.
const carryStateTailSize = assistantRunRetentionHint

// assistantRunRetentionHint mirrors the chunker's own assistant-run
// threshold so a run isn't silently truncated at a chunk boundary.
const assistantRunRetentionHint = 10

func (s *Server) handleIngestChunk(ctx context.Context, raw json.RawMessage) (interface{}, *JSONRPCError) {
	var p ingestChunkParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if len(p.Events) == 0 {
		return nil, appErr(ErrCodeChunkEmpty, "events must not be empty")
	}
	if isBlank(p.ProjectID) || isBlank(p.OwnerType) || isBlank(p.OwnerID) {
		return nil, appErr(ErrCodeInvalidProject, "project_id, owner_type, and owner_id are required")
	}
	if _, err := types.ParseOwnerType(p.OwnerType); err != nil {
		return nil, appErr(ErrCodeInvalidProject, err.Error())
	}

	var carried []wireEvent
	if len(p.CarryState) > 0 {
		if err := json.Unmarshal(p.CarryState, &carried); err != nil {
			return nil, appErr(ErrCodeInvalidProject, fmt.Sprintf("malformed carry_state: %v", err))
		}
	}

	allWire := append(append([]wireEvent{}, carried...), p.Events...)
	events := make([]types.Event, len(allWire))
	for i, w := range allWire {
		events[i] = w.toEvent()
	}

	episodes := episode.Split(p.ProjectID, events)

	var carryEvents []wireEvent
	var processEpisodes []*types.Episode
	if len(episodes) > 0 {
		last := episodes[len(episodes)-1]
		if len(last.Events) < carryStateTailSize {
			tail := last.Events
			for _, e := range tail {
				carryEvents = append(carryEvents, fromEvent(e))
			}
			processEpisodes = episodes[:len(episodes)-1]
		} else {
			processEpisodes = episodes
		}
	}
	nextCarry, _ := json.Marshal(carryEvents)

	recent := make([]*types.Memory, len(p.RecentMemories))
	for i, w := range p.RecentMemories {
		recent[i] = w.toMemory()
	}

	result := ingestChunkResult{CarryState: nextCarry}

	if s.extractor == nil {
		for _, ep := range processEpisodes {
			result.Episodes = append(result.Episodes, fromEpisode(ep))
		}
		result.DiscardReason = "extractor not configured: episodes recorded without memory extraction"
		for _, ep := range processEpisodes {
			if _, err := s.store.InsertEpisode(ctx, ep); err != nil {
				return nil, internalErr(err)
			}
		}
		return result, nil
	}

	for _, ep := range processEpisodes {
		epID, err := s.store.InsertEpisode(ctx, ep)
		if err != nil {
			return nil, internalErr(err)
		}
		ep.ID = epID
		result.Episodes = append(result.Episodes, fromEpisode(ep))

		ops, err := s.extractor.Extract(ctx, ep, recent)
		if err != nil {
			if err == extractor.ErrCircuitOpen {
				return nil, appErr(ErrCodeExtractorError, "extractor circuit breaker open")
			}
			return nil, appErr(ErrCodeExtractorError, err.Error())
		}

		var kept []types.MemoryOp
		for _, op := range ops {
			if op.Confidence >= s.confidenceThreshold() {
				kept = append(kept, op)
			}
		}
		if len(kept) == 0 {
			continue
		}

		for _, r := range s.applier.Apply(ctx, kept, epID) {
			if r.Err != nil || r.MemoryID == "" {
				continue
			}
			mem, err := s.store.GetMemoryByID(ctx, r.MemoryID)
			if err != nil || mem == nil {
				continue
			}
			result.Memories = append(result.Memories, fromMemory(mem, 0))
		}
		_ = s.store.MarkEpisodeProcessed(ctx, epID)
	}

	return result, nil
}

// composeContextParams/Result: {task, memories[], token_budget} -> {context_prompt, used_memory_ids}
type composeContextParams struct {
	Task        string       `json:"task"`
	Memories    []wireMemory `json:"memories"`
	TokenBudget int          `json:"token_budget"`
}

type composeContextResult struct {
	ContextPrompt string   `json:"context_prompt"`
	UsedMemoryIDs []string `json:"used_memory_ids"`
}

func (s *Server) handleComposeContext(ctx context.Context, raw json.RawMessage) (interface{}, *JSONRPCError) {
	var p composeContextParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if isBlank(p.Task) {
		return nil, appErr(ErrCodeEmptyTask, "task must not be empty")
	}

	scored := make([]retrieval.Scored, len(p.Memories))
	for i, w := range p.Memories {
		scored[i] = retrieval.Scored{Memory: w.toMemory(), Similarity: w.Similarity}
	}

	text, used := retrieval.FormatContext(scored, p.TokenBudget)
	return composeContextResult{ContextPrompt: text, UsedMemoryIDs: used}, nil
}

// searchMemoriesParams/Result: {project_id, query, top_k, filters} -> {results[]}
type searchMemoriesParams struct {
	ProjectID string              `json:"project_id"`
	Query     string              `json:"query"`
	TopK      int                 `json:"top_k,omitempty"`
	Filters   *searchMemoryFilter `json:"filters,omitempty"`
}

type searchMemoryFilter struct {
	Scope     string `json:"scope,omitempty"`
	OwnerType string `json:"owner_type,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

type searchMemoriesResult struct {
	Results []wireMemory `json:"results"`
}

func (s *Server) handleSearchMemories(ctx context.Context, raw json.RawMessage) (interface{}, *JSONRPCError) {
	var p searchMemoriesParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if isBlank(p.ProjectID) {
		return nil, appErr(ErrCodeProjectNotInitialized, "project_id is required: project has no initialized memory store")
	}
	if isBlank(p.Query) {
		return nil, appErr(ErrCodeEmptyQuery, "query must not be empty")
	}

	filter := storage.ActiveMemoryFilter{ProjectID: p.ProjectID, Scope: types.ScopeProject}
	if p.Filters != nil {
		if p.Filters.Scope != "" {
			if sc, err := types.ParseScope(p.Filters.Scope); err == nil {
				filter.Scope = sc
			}
		}
		if p.Filters.OwnerType != "" {
			if ot, err := types.ParseOwnerType(p.Filters.OwnerType); err == nil {
				filter.OwnerType = ot
			}
		}
		filter.OwnerID = p.Filters.OwnerID
		if p.Filters.Kind != "" {
			if k, err := types.ParseMemoryKind(p.Filters.Kind); err == nil {
				filter.Kind = k
			}
		}
	}

	candidates, err := s.store.GetActiveMemories(ctx, filter, 0)
	if err != nil {
		return nil, internalErr(err)
	}

	queryVec, err := s.embedder.Embed(ctx, p.Query)
	if err != nil {
		return nil, appErr(ErrCodeEmbeddingFailed, err.Error())
	}

	ranked, err := retrieval.Rank(candidates, queryVec, retrieval.Query{TopK: p.TopK})
	if err != nil {
		return nil, internalErr(err)
	}

	out := make([]wireMemory, len(ranked))
	for i, r := range ranked {
		out[i] = fromMemory(r.Memory, r.Similarity)
	}
	return searchMemoriesResult{Results: out}, nil
}

// evaluateMemoriesParams/Result: {now?, memories[]} -> {decisions[]}
type evaluateMemoriesParams struct {
	Now      *time.Time          `json:"now,omitempty"`
	Memories []wireEvaluateItem `json:"memories"`
}

type evaluateMemoriesResult struct {
	Decisions []wireDecision `json:"decisions"`
}

func (s *Server) handleEvaluateMemories(ctx context.Context, raw json.RawMessage) (interface{}, *JSONRPCError) {
	var p evaluateMemoriesParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if len(p.Memories) == 0 {
		return nil, appErr(ErrCodeEmptyDecisionList, "memories must not be empty")
	}

	now := time.Now().UTC()
	if p.Now != nil {
		now = *p.Now
	}

	var decisions []wireDecision
	for _, item := range p.Memories {
		kind, err := types.ParseMemoryKind(item.Kind)
		if err != nil {
			return nil, appErr(ErrCodeInvalidMemoryState, err.Error())
		}
		tier, err := types.ParseMemoryTier(item.Tier)
		if err != nil {
			return nil, appErr(ErrCodeInvalidMemoryState, err.Error())
		}
		status, err := types.ParseMemoryStatus(item.Status)
		if err != nil {
			return nil, appErr(ErrCodeInvalidMemoryState, err.Error())
		}

		mem := types.Memory{ID: item.ID, Kind: kind, Tier: tier, Status: status, ExpiresAt: item.ExpiresAt}
		metrics := item.Metrics.toMetrics(item.ID)

		d := s.evaluator.Evaluate(mem, metrics, now)
		if d.Result == types.EvalNoChange {
			continue
		}
		if err := s.store.ApplyDecision(ctx, d); err != nil {
			return nil, internalErr(err)
		}
		decisions = append(decisions, fromDecision(d))
	}

	return evaluateMemoriesResult{Decisions: decisions}, nil
}

func (s *Server) confidenceThreshold() float64 {
	if s.confidenceMin > 0 {
		return s.confidenceMin
	}
	return commit.DefaultConfidenceThreshold
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' {
			return false
		}
	}
	return true
}
