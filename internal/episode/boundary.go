package episode

import (
	"time"

	"github.com/kamino/squirrel/pkg/types"
)

const (
	boundaryGap           = 30 * time.Minute
	minEventsPerEpisode   = 3
	assistantRunThreshold = 10
)

// findBoundaries returns the indices in events where a new episode
// begins. Index 0 is always a boundary.
func findBoundaries(events []types.Event) []int {
	if len(events) == 0 {
		return nil
	}
	if len(events) == 1 {
		return []int{0}
	}

	boundaries := []int{0}

	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Sub(events[i-1].Timestamp) > boundaryGap {
			boundaries = append(boundaries, i)
			continue
		}

		if events[i].Role == types.RoleUser && events[i].Kind == types.EventMessage {
			assistantCount := 0
			for j := i - 1; j >= 0; j-- {
				if events[j].Role == types.RoleAssistant {
					assistantCount++
				} else {
					break
				}
			}
			if assistantCount >= assistantRunThreshold {
				boundaries = append(boundaries, i)
			}
		}
	}

	return boundaries
}
