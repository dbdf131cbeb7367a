package dispatch

import (
	"fmt"
	"strings"

	"github.com/nadzzz/companion/internal/action"
	"github.com/nadzzz/companion/internal/intent"
)

// Fixed replies.
const (
	ReplyNotAuthorized    = "Please connect your account first."
	ReplyScoreOutOfRange  = "Score must be between 1 and 10."
	ReplyApology          = "Sorry, something went wrong on my end. Please try again."
	ReplyNoInput          = "I didn't catch anything to respond to."
	ReplyUnclearAudio     = "Sorry, I couldn't make out that audio. Could you try again?"
	ReplyConversationDown = "Sorry, I can't chat right now. Please try again in a moment."
	ReplyTimedOut         = "Sorry, that took too long. Please try again."
)

// Narrate renders an outcome as a reply sentence. It never includes error
// text.
func Narrate(out action.Outcome) string {
	switch out.Kind {
	case action.Succeeded:
		return narrateSuccess(out)
	case action.AlreadyInDesiredState:
		return narrateAlready(out)
	case action.NotFound:
		return fmt.Sprintf("Could not find \"%s\"; check the spelling.", out.QueriedName)
	case action.NotAuthorized:
		return ReplyNotAuthorized
	case action.Ambiguous:
		return fmt.Sprintf("I found several matches for \"%s\": %s. Which one did you mean?", out.QueriedName, joinOr(out.Candidates))
	case action.Invalid:
		switch out.Reason {
		case action.ReasonScoreOutOfRange:
			return ReplyScoreOutOfRange
		case action.ReasonUnknownStatus:
			return "I don't know that list status. Try watching, completed, on hold, dropped or plan to watch."
		default:
			return "I couldn't tell which anime you meant."
		}
	case action.ExecutionFailed:
		if out.Reason == action.ReasonTimeout {
			if out.Action == "" {
				return ReplyTimedOut
			}
			return "The anime service took too long to respond. Please try again."
		}
		if out.Reason == action.ReasonInternal {
			return ReplyApology
		}
		return "Something went wrong updating your list. Please try again later."
	}
	return ReplyApology
}

func narrateSuccess(out action.Outcome) string {
	switch out.Action {
	case intent.AddToList:
		return fmt.Sprintf("Added \"%s\" to your plan-to-watch list.", out.Title)
	case intent.SetStatus:
		return fmt.Sprintf("Marked \"%s\" as %s.", out.Title, out.Detail.Status.Label())
	case intent.Rate:
		return narrateRating(out.Title, out.Detail.Score)
	case intent.Remove:
		return fmt.Sprintf("Removed \"%s\" from your list.", out.Title)
	}
	return fmt.Sprintf("Updated \"%s\".", out.Title)
}

func narrateRating(title string, score int) string {
	switch {
	case score >= 9:
		return fmt.Sprintf("Rated \"%s\" %d/10. That's a masterpiece in your book!", title, score)
	case score >= 7:
		return fmt.Sprintf("Rated \"%s\" %d/10. Sounds like you really enjoyed it.", title, score)
	case score >= 5:
		return fmt.Sprintf("Rated \"%s\" %d/10. A decent watch, then.", title, score)
	default:
		return fmt.Sprintf("Rated \"%s\" %d/10. Sorry it didn't land for you.", title, score)
	}
}

func narrateAlready(out action.Outcome) string {
	switch out.Action {
	case intent.Rate:
		return fmt.Sprintf("\"%s\" is already rated %d/10.", out.Title, out.Detail.Score)
	case intent.SetStatus:
		return fmt.Sprintf("\"%s\" is already marked as %s.", out.Title, out.Detail.Status.Label())
	default:
		return fmt.Sprintf("\"%s\" is already on your list (%s).", out.Title, out.Detail.Status.Label())
	}
}

// joinOr renders ["a","b","c"] as `"a", "b" or "c"`.
func joinOr(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("\"%s\"", s)
	}
	switch len(quoted) {
	case 0:
		return ""
	case 1:
		return quoted[0]
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
}
