package episode

import (
	"fmt"

	"trader-consensus-lab/internal/domain"
)

// ValidationReport is the result of reconciling episodes against the
// fill stream they were built from. It is a structured report for
// audit and backfill integrity checks, never an error value.
type ValidationReport struct {
	Valid        bool
	Errors       []string
	FillCount    int
	EpisodeCount int
}

// fillUsage tracks how many times a fill appears in entry and exit
// lists across all episodes.
type fillUsage struct {
	entries int
	exits   int
}

// Validate checks that every input fill is referenced by exactly one
// episode, with the single sanctioned exception of a direction-flip
// fill, which appears once as the exit of the flipped episode and once
// as the entry of its successor. Episodes referencing unknown fills
// are also reported. Never returns an error; the caller decides how to
// act on the report (e.g. trigger a backfill).
func Validate(episodes []*domain.Episode, fills []*domain.Fill) ValidationReport {
	report := ValidationReport{
		Valid:        true,
		FillCount:    len(fills),
		EpisodeCount: len(episodes),
	}

	known := make(map[string]struct{}, len(fills))
	for _, f := range fills {
		known[f.FillID] = struct{}{}
	}

	usage := make(map[string]*fillUsage, len(fills))
	for _, ep := range episodes {
		for _, id := range ep.EntryFills {
			if _, ok := known[id]; !ok {
				report.addError("episode %s references unknown entry fill %s", ep.EpisodeID, id)
				continue
			}
			use(usage, id).entries++
		}
		for _, id := range ep.ExitFills {
			if _, ok := known[id]; !ok {
				report.addError("episode %s references unknown exit fill %s", ep.EpisodeID, id)
				continue
			}
			use(usage, id).exits++
		}
	}

	for _, f := range fills {
		u, ok := usage[f.FillID]
		if !ok {
			report.addError("fill %s not referenced by any episode", f.FillID)
			continue
		}
		total := u.entries + u.exits
		switch {
		case total == 1:
			// normal case
		case total == 2 && u.entries == 1 && u.exits == 1:
			// direction flip: exit of one episode, entry of the next
		default:
			report.addError("fill %s referenced %d times (entries=%d, exits=%d)",
				f.FillID, total, u.entries, u.exits)
		}
	}

	return report
}

func (r *ValidationReport) addError(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func use(usage map[string]*fillUsage, fillID string) *fillUsage {
	u, ok := usage[fillID]
	if !ok {
		u = &fillUsage{}
		usage[fillID] = u
	}
	return u
}
