package statemachine

import (
	"context"
	"errors"
	"testing"

	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFSM_ReviewFromEachOpenState(t *testing.T) {
	for _, status := range []models.LogStatus{models.LogStatusSubmitted, models.LogStatusFlagged, models.LogStatusUnderReview} {
		for _, outcome := range []models.LogStatus{models.LogStatusApproved, models.LogStatusRejected} {
			log := &models.DrivingLog{Status: status}
			require.NoError(t, NewLogFSM(log).Review(context.Background(), outcome))
			assert.Equal(t, outcome, log.Status)
		}
	}
}

func TestLogFSM_TerminalStatesRejectReview(t *testing.T) {
	for _, status := range []models.LogStatus{models.LogStatusApproved, models.LogStatusRejected} {
		log := &models.DrivingLog{Status: status}
		err := NewLogFSM(log).Review(context.Background(), models.LogStatusRejected)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Equal(t, status, log.Status)
	}
}

func TestLogFSM_ReviewRequiresOutcome(t *testing.T) {
	log := &models.DrivingLog{Status: models.LogStatusSubmitted}
	err := NewLogFSM(log).Review(context.Background(), models.LogStatusFlagged)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, models.LogStatusSubmitted, log.Status)
}

func TestLogFSM_StartReview(t *testing.T) {
	log := &models.DrivingLog{Status: models.LogStatusFlagged}
	m := NewLogFSM(log)
	require.NoError(t, m.StartReview(context.Background()))
	assert.Equal(t, models.LogStatusUnderReview, log.Status)

	err := m.StartReview(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestActionFSM_Lifecycle(t *testing.T) {
	ctx := context.Background()

	done := &models.AdminAction{Status: models.ActionStatusPending}
	m := NewActionFSM(done)
	require.NoError(t, m.Start(ctx))
	assert.Equal(t, models.ActionStatusInProgress, done.Status)
	require.NoError(t, m.Complete(ctx))
	assert.Equal(t, models.ActionStatusCompleted, done.Status)

	failed := &models.AdminAction{Status: models.ActionStatusPending}
	m = NewActionFSM(failed)
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Fail(ctx))
	assert.Equal(t, models.ActionStatusFailed, failed.Status)
}

func TestActionFSM_StartOnlyFromPending(t *testing.T) {
	for _, status := range []models.ActionStatus{
		models.ActionStatusInProgress, models.ActionStatusCompleted, models.ActionStatusFailed, models.ActionStatusCancelled,
	} {
		action := &models.AdminAction{Status: status}
		err := NewActionFSM(action).Start(context.Background())
		assert.True(t, errors.Is(err, ErrInvalidTransition), status)
		assert.Equal(t, status, action.Status)
	}
}

func TestActionFSM_Cancel(t *testing.T) {
	action := &models.AdminAction{Status: models.ActionStatusPending}
	require.NoError(t, NewActionFSM(action).Cancel(context.Background()))
	assert.Equal(t, models.ActionStatusCancelled, action.Status)

	running := &models.AdminAction{Status: models.ActionStatusInProgress}
	err := NewActionFSM(running).Cancel(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestActionFSM_CompleteRequiresInProgress(t *testing.T) {
	action := &models.AdminAction{Status: models.ActionStatusPending}
	err := NewActionFSM(action).Complete(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, models.ActionStatusPending, action.Status)
}
