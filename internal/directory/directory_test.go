package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryIsConsistent(t *testing.T) {
	t.Parallel()

	all := All()
	require.Len(t, all, 17)

	keys := map[string]bool{}
	seqs := map[int]bool{}
	emails := map[string]bool{}
	for _, r := range all {
		assert.NotEmpty(t, r.Key)
		assert.NotEmpty(t, r.Label)
		assert.NotEmpty(t, r.Email)

		assert.False(t, keys[r.Key], "duplicate key %q", r.Key)
		assert.False(t, seqs[r.SequenceNumber], "duplicate sequence number %d", r.SequenceNumber)
		assert.False(t, emails[r.Email], "duplicate email %q", r.Email)
		keys[r.Key] = true
		seqs[r.SequenceNumber] = true
		emails[r.Email] = true
	}

	// Sequence numbers are the dense range 1..17.
	for i := 1; i <= 17; i++ {
		assert.True(t, seqs[i], "missing sequence number %d", i)
	}
}

func TestByKey(t *testing.T) {
	t.Parallel()

	r, ok := ByKey("finance")
	require.True(t, ok)
	assert.Equal(t, 3, r.SequenceNumber)

	_, ok = ByKey("nonexistent")
	assert.False(t, ok)
}

func TestByEmail(t *testing.T) {
	t.Parallel()

	r, ok := ByEmail("HR@orgdesk.example")
	require.True(t, ok)
	assert.Equal(t, "hr", r.Key)

	r, ok = ByEmail("  ceo@orgdesk.example ")
	require.True(t, ok)
	assert.Equal(t, "ceo", r.Key)

	_, ok = ByEmail("nobody@orgdesk.example")
	assert.False(t, ok)
}

func TestAllReturnsCopy(t *testing.T) {
	t.Parallel()

	a := All()
	a[0].Key = "mutated"

	b := All()
	assert.NotEqual(t, "mutated", b[0].Key)
}
