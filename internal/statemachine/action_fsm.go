package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/sjperalta/interlock-api/internal/models"
)

const (
	eventStart    = "start"
	eventComplete = "complete"
	eventFail     = "fail"
	eventCancel   = "cancel"
)

// ActionFSM wraps an admin action with its execution state machine
type ActionFSM struct {
	action *models.AdminAction
	fsm    *fsm.FSM
}

// NewActionFSM creates a new admin action state machine
func NewActionFSM(action *models.AdminAction) *ActionFSM {
	afsm := &ActionFSM{
		action: action,
	}

	pending := string(models.ActionStatusPending)
	inProgress := string(models.ActionStatusInProgress)

	afsm.fsm = fsm.NewFSM(
		string(action.Status),
		fsm.Events{
			// pending → in progress
			{Name: eventStart, Src: []string{pending}, Dst: inProgress},

			// in progress → completed
			{Name: eventComplete, Src: []string{inProgress}, Dst: string(models.ActionStatusCompleted)},

			// in progress → failed
			{Name: eventFail, Src: []string{inProgress}, Dst: string(models.ActionStatusFailed)},

			// pending → cancelled
			{Name: eventCancel, Src: []string{pending}, Dst: string(models.ActionStatusCancelled)},
		},
		fsm.Callbacks{},
	)

	return afsm
}

// Start transitions the action to IN_PROGRESS
func (a *ActionFSM) Start(ctx context.Context) error {
	if !a.action.MayExecute() {
		return fmt.Errorf("%w: action cannot be executed in state %s", ErrInvalidTransition, a.action.Status)
	}
	return a.fire(ctx, eventStart)
}

// Complete transitions the action to COMPLETED
func (a *ActionFSM) Complete(ctx context.Context) error {
	return a.fire(ctx, eventComplete)
}

// Fail transitions the action to FAILED
func (a *ActionFSM) Fail(ctx context.Context) error {
	return a.fire(ctx, eventFail)
}

// Cancel transitions the action to CANCELLED
func (a *ActionFSM) Cancel(ctx context.Context) error {
	if !a.action.MayCancel() {
		return fmt.Errorf("%w: action cannot be cancelled in state %s", ErrInvalidTransition, a.action.Status)
	}
	return a.fire(ctx, eventCancel)
}

func (a *ActionFSM) fire(ctx context.Context, event string) error {
	if err := a.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("%w: %s from %s: %v", ErrInvalidTransition, event, a.action.Status, err)
	}

	a.action.Status = models.ActionStatus(a.fsm.Current())
	return nil
}

// Current returns the current state
func (a *ActionFSM) Current() models.ActionStatus {
	return models.ActionStatus(a.fsm.Current())
}

// Can checks if a transition is possible
func (a *ActionFSM) Can(event string) bool {
	return a.fsm.Can(event)
}
