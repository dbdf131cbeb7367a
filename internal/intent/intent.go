// Package intent classifies free-form user text into a list-management
// intent.
//
// Classification runs an ordered slice of typed matchers; the first one that
// binds wins and no other matcher is consulted. When no matcher binds and
// the caller allows it, the text is handed to a language model constrained
// to a tiny answer grammar, and that answer is parsed strictly.
package intent

import "github.com/nadzzz/companion/internal/catalog"

// Kind tags an Intent.
type Kind string

const (
	None             Kind = "none"
	AddToList        Kind = "add"
	SetStatus        Kind = "set_status"
	Rate             Kind = "rate"
	Remove           Kind = "remove"
	RatingOutOfRange Kind = "rating_out_of_range"
)

// Intent is a classified user goal. Which fields are meaningful depends on
// Kind:
//
//	AddToList         EntityName
//	SetStatus         EntityName, Status
//	Rate              EntityName, Score in [1,10]
//	Remove            EntityName
//	RatingOutOfRange  EntityName, Score (the rejected value, 0 if not whole)
//	None              Explanation (model text, may be empty)
type Intent struct {
	Kind        Kind           `json:"kind"`
	EntityName  string         `json:"entity_name,omitempty"`
	Status      catalog.Status `json:"status,omitempty"`
	Score       int            `json:"score,omitempty"`
	Explanation string         `json:"explanation,omitempty"`

	// Source names the matcher that produced the intent, or "model".
	Source string `json:"source,omitempty"`
}

// Score bounds.
const (
	MinScore = 1
	MaxScore = 10
)

// Actionable reports whether i should reach the action executor.
func (i Intent) Actionable() bool {
	switch i.Kind {
	case AddToList, SetStatus, Rate, Remove:
		return true
	}
	return false
}
