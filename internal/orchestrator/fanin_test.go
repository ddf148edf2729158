package orchestrator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-orchestrator/internal/core"
	"github.com/book-expert/voice-orchestrator/internal/orchestrator"
)

func TestAllOrNothing_Decide(t *testing.T) {
	t.Parallel()

	policy := orchestrator.AllOrNothing{}
	failure := core.Failed("stt", 500, "boom")
	cancelled := core.Unavailable("environment", context.Canceled)

	tests := []struct {
		name     string
		outcomes []orchestrator.BranchOutcome
		branches []string
	}{
		{
			name: "all succeed",
			outcomes: []orchestrator.BranchOutcome{
				{Branch: orchestrator.BranchTranscription},
				{Branch: orchestrator.BranchEmotion},
			},
		},
		{
			name: "aborted siblings are not reported",
			outcomes: []orchestrator.BranchOutcome{
				{Branch: orchestrator.BranchTranscription, Err: failure},
				{Branch: orchestrator.BranchEnvironment, Err: cancelled, Aborted: true},
			},
			branches: []string{orchestrator.BranchTranscription},
		},
		{
			name: "only aborted branches",
			outcomes: []orchestrator.BranchOutcome{
				{Branch: orchestrator.BranchEnvironment, Err: cancelled, Aborted: true},
			},
			branches: []string{orchestrator.BranchEnvironment},
		},
		{
			name: "every failure is reported",
			outcomes: []orchestrator.BranchOutcome{
				{Branch: orchestrator.BranchTranscription, Err: failure},
				{Branch: orchestrator.BranchEnvironment, Err: cancelled},
			},
			branches: []string{orchestrator.BranchTranscription, orchestrator.BranchEnvironment},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := policy.Decide(tc.outcomes)
			if tc.branches == nil {
				require.NoError(t, err)

				return
			}

			var fanInErr *orchestrator.FanInError
			require.ErrorAs(t, err, &fanInErr)
			assert.Equal(t, tc.branches, fanInErr.Branches())
		})
	}
}

func TestFanInError_MatchesBranchErrors(t *testing.T) {
	t.Parallel()

	err := error(&orchestrator.FanInError{Failures: []orchestrator.BranchOutcome{
		{Branch: orchestrator.BranchEmotion, Err: core.Failed("emotion", 502, "bad gateway")},
		{Branch: orchestrator.BranchEnvironment, Err: core.Unavailable("environment", context.DeadlineExceeded)},
	}})

	require.ErrorIs(t, err, core.ErrCollaboratorFailed)
	require.ErrorIs(t, err, core.ErrCollaboratorUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, core.ErrValidation))
	assert.Contains(t, err.Error(), "emotion")
	assert.Contains(t, err.Error(), "environment")
	assert.True(t, orchestrator.AllOrNothing{}.Abort(orchestrator.BranchOutcome{Err: err}))
}
