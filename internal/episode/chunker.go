// Package episode normalizes raw session events into Episodes: boundary
// detection, per-episode stats (error count, retry loops, frustration),
// and the merge-tiny-episodes rule.
package episode

import (
	"github.com/kamino/squirrel/pkg/types"
)

// Split partitions a time-ordered event list into episodes. An empty
// input yields zero episodes. Episodes shorter than minEventsPerEpisode
// are merged into the previous episode; if merging leaves no episodes at
// all, one episode containing every event is emitted.
func Split(projectID string, events []types.Event) []*types.Episode {
	if len(events) == 0 {
		return nil
	}

	boundaries := findBoundaries(events)
	boundaries = append(boundaries, len(events))

	var episodes []*types.Episode

	for i := 0; i < len(boundaries)-1; i++ {
		start, end := boundaries[i], boundaries[i+1]
		slice := events[start:end]

		if len(slice) < minEventsPerEpisode && len(episodes) > 0 {
			prev := episodes[len(episodes)-1]
			prev.Events = append(prev.Events, slice...)
			computeStats(prev)
			continue
		}

		ep := &types.Episode{ProjectID: projectID, Events: append([]types.Event(nil), slice...)}
		computeStats(ep)
		episodes = append(episodes, ep)
	}

	if len(episodes) == 0 {
		ep := &types.Episode{ProjectID: projectID, Events: append([]types.Event(nil), events...)}
		computeStats(ep)
		episodes = append(episodes, ep)
	}

	return episodes
}

// computeStats fills ErrorCount, RetryLoops, and UserFrustration from
// ep.Events.
func computeStats(ep *types.Episode) {
	errorCount := 0
	for _, e := range ep.Events {
		if e.IsError {
			errorCount++
		}
	}

	maxFrustration := types.FrustrationNone
	for _, e := range ep.Events {
		if e.Role != types.RoleUser || e.Kind != types.EventMessage {
			continue
		}
		f := DetectFrustration(e.Summary)
		if frustrationRank(f) > frustrationRank(maxFrustration) {
			maxFrustration = f
		}
	}

	ep.ErrorCount = errorCount
	ep.RetryLoops = DetectRetryLoops(ep.Events)
	ep.UserFrustration = maxFrustration
}

func frustrationRank(f types.Frustration) int {
	switch f {
	case types.FrustrationNone:
		return 0
	case types.FrustrationMild:
		return 1
	case types.FrustrationModerate:
		return 2
	case types.FrustrationSevere:
		return 3
	default:
		return -1
	}
}
