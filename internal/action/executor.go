// Package action executes classified intents against the catalog.
//
// Every execution walks the same stages (received, authorizing, resolving,
// mutating, done) and ends in exactly one Outcome. Failures are values; the
// executor never returns an error and never retries.
package action

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/companion/internal/auth"
	"github.com/nadzzz/companion/internal/catalog"
	"github.com/nadzzz/companion/internal/intent"
)

// SearchLimit is how many candidates entity resolution asks for.
const SearchLimit = 3

// Disambiguation policies.
const (
	PolicyFirst   = "first"
	PolicyClarify = "clarify"
)

// Catalog is the subset of the catalog client the executor needs.
type Catalog interface {
	Search(ctx context.Context, token, query string, limit int) ([]catalog.Entry, error)
	UpdateStatus(ctx context.Context, token string, id int, u catalog.Update) (*catalog.ListStatus, error)
	Remove(ctx context.Context, token string, id int) error
}

// Options configures an Executor.
type Options struct {
	// Policy is PolicyFirst (default) or PolicyClarify.
	Policy string

	// Timeout bounds the whole execution; zero disables it.
	Timeout time.Duration
}

// Executor runs intents.
type Executor struct {
	catalog Catalog
	policy  string
	timeout time.Duration

	// Now is the clock used for session validity.
	Now func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(c Catalog, opts Options) *Executor {
	policy := opts.Policy
	if policy != PolicyClarify {
		policy = PolicyFirst
	}
	return &Executor{catalog: c, policy: policy, timeout: opts.Timeout, Now: time.Now}
}

// Execute runs in against the catalog on behalf of sess.
func (e *Executor) Execute(ctx context.Context, in intent.Intent, sess *auth.Session) Outcome {
	r := newRun()
	log := slog.With("intent", in.Kind, "entity", in.EntityName)

	r.advance(StageAuthorizing)
	if !auth.IsValid(sess, e.Now()) {
		log.Info("action refused, no valid session")
		return r.finish(Outcome{Kind: NotAuthorized, Action: in.Kind})
	}

	if reason := validate(in); reason != "" {
		return r.finish(Outcome{Kind: Invalid, Action: in.Kind, Reason: reason})
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	r.advance(StageResolving)
	entry, out, ok := e.resolve(ctx, in, sess.AccessToken)
	if !ok {
		log.Info("action resolution ended", "outcome", out.Kind, "reason", out.Reason)
		return r.finish(out)
	}

	base := Outcome{Action: in.Kind, Title: entry.Title, EntryID: entry.ID}
	if detail, already := alreadySatisfied(in, entry); already {
		base.Kind = AlreadyInDesiredState
		base.Detail = detail
		return r.finish(base)
	}

	r.advance(StageMutating)
	out = e.mutate(ctx, in, sess.AccessToken, entry, base)
	log.Info("action executed", "outcome", out.Kind, "entry_id", entry.ID, "reason", out.Reason)
	if out.Err != nil {
		log.Warn("action failed", "error", out.Err)
	}
	return r.finish(out)
}

func validate(in intent.Intent) string {
	switch in.Kind {
	case intent.AddToList, intent.Remove:
	case intent.SetStatus:
		if !in.Status.Valid() {
			return ReasonUnknownStatus
		}
	case intent.Rate:
		if in.Score < intent.MinScore || in.Score > intent.MaxScore {
			return ReasonScoreOutOfRange
		}
	case intent.RatingOutOfRange:
		return ReasonScoreOutOfRange
	default:
		return ReasonNotActionable
	}
	if strings.TrimSpace(in.EntityName) == "" {
		return ReasonMissingEntity
	}
	return ""
}

func (e *Executor) resolve(ctx context.Context, in intent.Intent, token string) (catalog.Entry, Outcome, bool) {
	hits, err := e.catalog.Search(ctx, token, in.EntityName, SearchLimit)
	if err != nil {
		return catalog.Entry{}, classify(ctx, in, err), false
	}
	if len(hits) == 0 {
		return catalog.Entry{}, Outcome{Kind: NotFound, Action: in.Kind, QueriedName: in.EntityName}, false
	}

	top := hits[0]
	if e.policy == PolicyClarify && len(hits) > 1 && !sameTitle(top.Title, in.EntityName) {
		titles := make([]string, 0, len(hits))
		for _, h := range hits {
			titles = append(titles, h.Title)
		}
		return catalog.Entry{}, Outcome{Kind: Ambiguous, Action: in.Kind, QueriedName: in.EntityName, Candidates: titles}, false
	}
	return top, Outcome{}, true
}

func alreadySatisfied(in intent.Intent, entry catalog.Entry) (Detail, bool) {
	ls := entry.ListStatus
	if ls == nil {
		return Detail{}, false
	}
	switch in.Kind {
	case intent.AddToList:
		return Detail{Status: ls.Status}, true
	case intent.SetStatus:
		return Detail{Status: ls.Status}, ls.Status == in.Status
	case intent.Rate:
		return Detail{Score: ls.Score}, ls.Score == in.Score
	}
	return Detail{}, false
}

func (e *Executor) mutate(ctx context.Context, in intent.Intent, token string, entry catalog.Entry, base Outcome) Outcome {
	var (
		u      catalog.Update
		detail Detail
	)
	switch in.Kind {
	case intent.AddToList:
		st := catalog.StatusPlanToWatch
		u.Status, detail.Status = &st, st
	case intent.SetStatus:
		st := in.Status
		u.Status, detail.Status = &st, st
	case intent.Rate:
		score := in.Score
		u.Score, detail.Score = &score, score
	case intent.Remove:
		if err := e.catalog.Remove(ctx, token, entry.ID); err != nil {
			return classify(ctx, in, err)
		}
		base.Kind = Succeeded
		base.Detail = Detail{Removed: true}
		return base
	}

	if _, err := e.catalog.UpdateStatus(ctx, token, entry.ID, u); err != nil {
		return classify(ctx, in, err)
	}
	base.Kind = Succeeded
	base.Detail = detail
	return base
}

// classify maps a catalog error to an outcome. A spent deadline counts as a
// timeout even when the error itself does not say so.
func classify(ctx context.Context, in intent.Intent, err error) Outcome {
	var (
		ae *catalog.AuthError
		nf *catalog.NotFoundError
		ne net.Error
	)
	switch {
	case errors.As(err, &ae):
		return Outcome{Kind: NotAuthorized, Action: in.Kind, Err: err}
	case errors.As(err, &nf):
		return Outcome{Kind: NotFound, Action: in.Kind, QueriedName: in.EntityName, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout(),
		errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Failed(in.Kind, ReasonTimeout, err)
	default:
		return Failed(in.Kind, ReasonRemote, err)
	}
}

func sameTitle(a, b string) bool {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return norm(a) == norm(b)
}
