package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceJoinIdempotent(t *testing.T) {
	t.Parallel()

	p := NewPresenceSet()
	assert.True(t, p.Join("a"))
	assert.False(t, p.Join("a"), "second join has no additional effect")
	assert.Equal(t, 1, p.Len())
}

func TestPresenceLeaveUnknownIsNoop(t *testing.T) {
	t.Parallel()

	p := NewPresenceSet()
	assert.False(t, p.Leave("ghost"))
	assert.Equal(t, 0, p.Len())
}

func TestPresenceJoinLeaveSequences(t *testing.T) {
	t.Parallel()

	p := NewPresenceSet()
	p.Join("a")
	p.Join("b")
	p.Join("a")
	p.Leave("b")
	p.Join("c")
	p.Leave("ghost")

	assert.Equal(t, 2, p.Len())
	assert.True(t, p.Contains("a"))
	assert.False(t, p.Contains("b"))
	assert.True(t, p.Contains("c"))
	assert.ElementsMatch(t, []ConnID{"a", "c"}, p.List())
}
