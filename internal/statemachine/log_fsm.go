package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/sjperalta/interlock-api/internal/models"
)

const (
	eventStartReview = "start_review"
	eventApprove     = "approve"
	eventReject      = "reject"
)

// LogFSM wraps a driving log with its review state machine
type LogFSM struct {
	log *models.DrivingLog
	fsm *fsm.FSM
}

// NewLogFSM creates a new driving log state machine
func NewLogFSM(log *models.DrivingLog) *LogFSM {
	lfsm := &LogFSM{
		log: log,
	}

	open := []string{
		string(models.LogStatusSubmitted),
		string(models.LogStatusFlagged),
		string(models.LogStatusUnderReview),
	}

	lfsm.fsm = fsm.NewFSM(
		string(log.Status),
		fsm.Events{
			// submitted/flagged → under review
			{Name: eventStartReview, Src: []string{string(models.LogStatusSubmitted), string(models.LogStatusFlagged)}, Dst: string(models.LogStatusUnderReview)},

			// any non-terminal → approved
			{Name: eventApprove, Src: open, Dst: string(models.LogStatusApproved)},

			// any non-terminal → rejected
			{Name: eventReject, Src: open, Dst: string(models.LogStatusRejected)},
		},
		fsm.Callbacks{},
	)

	return lfsm
}

// StartReview transitions the log to UNDER_REVIEW
func (l *LogFSM) StartReview(ctx context.Context) error {
	if !l.log.MayStartReview() {
		return fmt.Errorf("%w: log cannot start review in state %s", ErrInvalidTransition, l.log.Status)
	}
	return l.fire(ctx, eventStartReview)
}

// Review records a final outcome, APPROVED or REJECTED
func (l *LogFSM) Review(ctx context.Context, outcome models.LogStatus) error {
	if !l.log.MayReview() {
		return fmt.Errorf("%w: log already %s", ErrInvalidTransition, l.log.Status)
	}

	switch outcome {
	case models.LogStatusApproved:
		return l.fire(ctx, eventApprove)
	case models.LogStatusRejected:
		return l.fire(ctx, eventReject)
	default:
		return fmt.Errorf("%w: %s is not a review outcome", ErrInvalidTransition, outcome)
	}
}

func (l *LogFSM) fire(ctx context.Context, event string) error {
	if err := l.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("%w: %s from %s: %v", ErrInvalidTransition, event, l.log.Status, err)
	}

	l.log.Status = models.LogStatus(l.fsm.Current())
	return nil
}

// Current returns the current state
func (l *LogFSM) Current() models.LogStatus {
	return models.LogStatus(l.fsm.Current())
}

// Can checks if a transition is possible
func (l *LogFSM) Can(event string) bool {
	return l.fsm.Can(event)
}
