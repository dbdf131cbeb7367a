package action

import "fmt"

// Stage is a step of a single execution. Stages only move forward.
type Stage int

const (
	StageReceived Stage = iota
	StageAuthorizing
	StageResolving
	StageMutating
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageAuthorizing:
		return "authorizing"
	case StageResolving:
		return "resolving"
	case StageMutating:
		return "mutating"
	case StageDone:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// run tracks one execution's progress.
type run struct {
	stage Stage
	trace []Stage
}

func newRun() *run {
	return &run{stage: StageReceived, trace: []Stage{StageReceived}}
}

// advance moves to next. Moving backwards or past StageDone is a
// programming error.
func (r *run) advance(next Stage) {
	if next <= r.stage {
		panic(fmt.Sprintf("action: stage %s cannot follow %s", next, r.stage))
	}
	r.stage = next
	r.trace = append(r.trace, next)
}

// finish stamps o with the trace and the terminal stage.
func (r *run) finish(o Outcome) Outcome {
	if r.stage != StageDone {
		r.advance(StageDone)
	}
	o.Trace = r.trace
	return o
}
