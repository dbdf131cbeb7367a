package action

import (
	"github.com/nadzzz/companion/internal/catalog"
	"github.com/nadzzz/companion/internal/intent"
)

// Kind tags an Outcome.
type Kind string

const (
	Succeeded             Kind = "succeeded"
	NotFound              Kind = "not_found"
	AlreadyInDesiredState Kind = "already_in_desired_state"
	ExecutionFailed       Kind = "execution_failed"
	NotAuthorized         Kind = "not_authorized"
	Ambiguous             Kind = "ambiguous"
	Invalid               Kind = "invalid"
)

// Failure reasons carried by ExecutionFailed and Invalid outcomes.
const (
	ReasonTimeout         = "timeout"
	ReasonRemote          = "remote_error"
	ReasonInternal        = "internal"
	ReasonScoreOutOfRange = "score_out_of_range"
	ReasonUnknownStatus   = "unknown_status"
	ReasonMissingEntity   = "missing_entity"
	ReasonNotActionable   = "not_actionable"
)

// Detail describes the change a successful (or already satisfied) action
// made.
type Detail struct {
	Status  catalog.Status `json:"status,omitempty"`
	Score   int            `json:"score,omitempty"`
	Removed bool           `json:"removed,omitempty"`
}

// Outcome is the result of executing one intent. Which fields are set
// depends on Kind:
//
//	Succeeded              Title, EntryID, Detail
//	AlreadyInDesiredState  Title, EntryID, Detail
//	NotFound               QueriedName
//	Ambiguous              QueriedName, Candidates
//	ExecutionFailed        Reason, Err
//	Invalid                Reason
//	NotAuthorized          nothing
type Outcome struct {
	Kind        Kind        `json:"kind"`
	Action      intent.Kind `json:"action"`
	Title       string      `json:"title,omitempty"`
	EntryID     int         `json:"entry_id,omitempty"`
	Detail      Detail      `json:"detail"`
	QueriedName string      `json:"queried_name,omitempty"`
	Candidates  []string    `json:"candidates,omitempty"`
	Reason      string      `json:"reason,omitempty"`

	// Err is the underlying failure, kept for logs only.
	Err error `json:"-"`

	// Trace lists the stages the invocation passed through, ending in a
	// terminal stage.
	Trace []Stage `json:"-"`
}

// Failed builds an ExecutionFailed outcome.
func Failed(action intent.Kind, reason string, err error) Outcome {
	return Outcome{Kind: ExecutionFailed, Action: action, Reason: reason, Err: err}
}
