package provision_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdnlab/internal/provision"
)

func TestStagesOrder(t *testing.T) {
	stages := provision.Stages()
	require.Len(t, stages, 9)
	for i, s := range stages {
		assert.Equal(t, i, int(s))
	}
	assert.Equal(t, "start-network", stages[0].String())
	assert.Equal(t, "wait-for-addresses", provision.StageWaitForAddresses.String())
	assert.Equal(t, "bind-gateway-switches", stages[8].String())
	assert.Equal(t, "stage(42)", provision.Stage(42).String())
}

func TestStateOnlyMovesForward(t *testing.T) {
	var st provision.State
	assert.Equal(t, provision.StageStartNetwork, st.Next())
	assert.False(t, st.Completed(provision.StageStartNetwork))

	require.Error(t, st.Complete(provision.StageEnableDHCP))
	require.NoError(t, st.Complete(provision.StageStartNetwork))
	require.Error(t, st.Complete(provision.StageStartNetwork))
	assert.True(t, st.Completed(provision.StageStartNetwork))
	assert.False(t, st.Completed(provision.StageEnableDHCP))

	for _, s := range provision.Stages()[1:] {
		require.NoError(t, st.Complete(s))
	}
	assert.True(t, st.Done())
}
