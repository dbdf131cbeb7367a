// Package catalog is a typed client for the MyAnimeList v2 REST API.
//
// Every operation takes the caller's bearer token. Remote failures are
// reported as *AuthError, *NotFoundError or *RemoteError so callers can
// branch on them with errors.As. No call is retried.
package catalog

import (
	"strings"
	"time"
)

// Status is a list membership status.
type Status string

const (
	StatusWatching    Status = "watching"
	StatusCompleted   Status = "completed"
	StatusOnHold      Status = "on_hold"
	StatusDropped     Status = "dropped"
	StatusPlanToWatch Status = "plan_to_watch"
)

// Statuses lists every valid Status.
var Statuses = []Status{StatusWatching, StatusCompleted, StatusOnHold, StatusDropped, StatusPlanToWatch}

// ParseStatus normalizes free text ("Plan to watch", "on-hold", "done")
// into a Status.
func ParseStatus(s string) (Status, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch norm {
	case "watching", "currently_watching":
		return StatusWatching, true
	case "completed", "finished", "done", "complete":
		return StatusCompleted, true
	case "on_hold", "onhold", "paused":
		return StatusOnHold, true
	case "dropped":
		return StatusDropped, true
	case "plan_to_watch", "plantowatch", "ptw", "planned":
		return StatusPlanToWatch, true
	}
	return "", false
}

// Valid reports whether s is one of Statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Label renders s for humans: "plan to watch".
func (s Status) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// Season identifies an airing season.
type Season struct {
	Year   int    `json:"year"`
	Season string `json:"season"`
}

// Entry is a catalog search or list result.
type Entry struct {
	ID         int         `json:"id"`
	Title      string      `json:"title"`
	Image      string      `json:"image,omitempty"`
	Synopsis   string      `json:"synopsis,omitempty"`
	Score      float64     `json:"score,omitempty"`
	Rank       int         `json:"rank,omitempty"`
	Popularity int         `json:"popularity,omitempty"`
	Episodes   int         `json:"episodes,omitempty"`
	Genres     []string    `json:"genres"`
	MediaType  string      `json:"media_type,omitempty"`
	Status     string      `json:"status,omitempty"`
	Season     *Season     `json:"season,omitempty"`
	ListStatus *ListStatus `json:"list_status,omitempty"`
}

// ListStatus is the user's membership state for one entry.
type ListStatus struct {
	Status          Status    `json:"status"`
	Score           int       `json:"score,omitempty"`
	WatchedEpisodes int       `json:"watched_episodes"`
	IsRewatching    bool      `json:"is_rewatching,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitzero"`
}

// ListItem is a list membership joined with its entry metadata.
type ListItem struct {
	Entry
	Membership ListStatus `json:"membership"`
}

// Details is the extended record returned for a single entry.
type Details struct {
	Entry
	AlternativeTitles []string `json:"alternative_titles,omitempty"`
	StartDate         string   `json:"start_date,omitempty"`
	EndDate           string   `json:"end_date,omitempty"`
	Rating            string   `json:"rating,omitempty"`
	Studios           []string `json:"studios,omitempty"`
}

// Update is a partial list-status change. Nil fields are not sent and
// leave the remote value untouched.
type Update struct {
	Status          *Status
	Score           *int
	WatchedEpisodes *int
	IsRewatching    *bool
}

// Empty reports whether u carries no fields.
func (u Update) Empty() bool {
	return u.Status == nil && u.Score == nil && u.WatchedEpisodes == nil && u.IsRewatching == nil
}
