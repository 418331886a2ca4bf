package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeRejectsSecondHolder(t *testing.T) {
	c := newControl()
	require.NoError(t, c.Take("alice"))
	err := c.Take("bob")
	assert.ErrorIs(t, err, ErrControlTaken)
	// Re-taking under the same name is idempotent.
	require.NoError(t, c.Take("alice"))
}

func TestStealOverridesWithoutReleasing(t *testing.T) {
	c := newControl()
	require.NoError(t, c.Take("alice"))
	c.Steal("mallory")
	assert.ErrorIs(t, c.authorize("alice"), ErrControlTaken)
	assert.NoError(t, c.authorize("mallory"))
}

func TestReleaseRejectsNonHolder(t *testing.T) {
	c := newControl()
	require.NoError(t, c.Take("alice"))
	err := c.Release("bob")
	assert.ErrorIs(t, err, ErrControlTaken)
	require.NoError(t, c.Release("alice"))
	assert.NoError(t, c.authorize("anyone"))
}
