package catalog

import (
	"fmt"
	"strings"
)

// SummaryLimits caps how many titles each group lists.
type SummaryLimits struct {
	Watching    int
	Completed   int
	PlanToWatch int
}

// DefaultSummaryLimits shows five watching titles and three of the others.
var DefaultSummaryLimits = SummaryLimits{Watching: 5, Completed: 3, PlanToWatch: 3}

// Summarize condenses a list into a short grouped text suitable for a
// prompt or a spoken answer. On-hold and dropped entries are counted in the
// header but not itemized.
func Summarize(items []ListItem, lim SummaryLimits) string {
	if len(items) == 0 {
		return "The list is empty."
	}

	var watching, completed, planned []ListItem
	for _, it := range items {
		switch it.Membership.Status {
		case StatusWatching:
			watching = append(watching, it)
		case StatusCompleted:
			completed = append(completed, it)
		case StatusPlanToWatch:
			planned = append(planned, it)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "List summary (%d entries):\n", len(items))

	writeGroup(&sb, "Currently watching", watching, lim.Watching, func(it ListItem) string {
		eps := "?"
		if it.Episodes > 0 {
			eps = fmt.Sprint(it.Episodes)
		}
		return fmt.Sprintf("%s (%d/%s episodes)", it.Title, it.Membership.WatchedEpisodes, eps)
	})
	writeGroup(&sb, "Completed", completed, lim.Completed, func(it ListItem) string {
		if it.Membership.Score > 0 {
			return fmt.Sprintf("%s (%d/10)", it.Title, it.Membership.Score)
		}
		return it.Title
	})
	writeGroup(&sb, "Plan to watch", planned, lim.PlanToWatch, func(it ListItem) string {
		return it.Title
	})

	return strings.TrimRight(sb.String(), "\n")
}

func writeGroup(sb *strings.Builder, name string, items []ListItem, limit int, line func(ListItem) string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s (%d):\n", name, len(items))
	shown := items
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, it := range shown {
		sb.WriteString("- " + line(it) + "\n")
	}
	if rest := len(items) - len(shown); rest > 0 {
		fmt.Fprintf(sb, "...and %d more\n", rest)
	}
}
