package eventadmin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFilterRejectsEmpty(t *testing.T) {
	_, err := CompileFilter("")
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestCompileFilterRejectsMalformed(t *testing.T) {
	_, err := CompileFilter("(region=us")
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestFilterNilAlwaysMatches(t *testing.T) {
	var f *Filter
	assert.True(t, f.Match(Properties{"anything": "here"}))
}

func TestFilterEquality(t *testing.T) {
	f, err := CompileFilter("(region=us-east-1)")
	require.NoError(t, err)
	assert.True(t, f.Match(Properties{"region": "us-east-1"}))
	assert.False(t, f.Match(Properties{"region": "eu-west-1"}))
	assert.False(t, f.Match(Properties{}))
}

func TestFilterPresence(t *testing.T) {
	f, err := CompileFilter("(trace.id=*)")
	require.NoError(t, err)
	assert.True(t, f.Match(Properties{"trace.id": "abc"}))
	assert.False(t, f.Match(Properties{}))
}

func TestFilterAnd(t *testing.T) {
	f, err := CompileFilter("(&(region=us-east-1)(tier=gold))")
	require.NoError(t, err)
	assert.True(t, f.Match(Properties{"region": "us-east-1", "tier": "gold"}))
	assert.False(t, f.Match(Properties{"region": "us-east-1", "tier": "silver"}))
}

func TestFilterOr(t *testing.T) {
	f, err := CompileFilter("(|(tier=gold)(tier=platinum))")
	require.NoError(t, err)
	assert.True(t, f.Match(Properties{"tier": "gold"}))
	assert.True(t, f.Match(Properties{"tier": "platinum"}))
	assert.False(t, f.Match(Properties{"tier": "silver"}))
}

func TestFilterNot(t *testing.T) {
	f, err := CompileFilter("(!(tier=silver))")
	require.NoError(t, err)
	assert.True(t, f.Match(Properties{"tier": "gold"}))
	assert.False(t, f.Match(Properties{"tier": "silver"}))
}

func TestFilterOrderingNumeric(t *testing.T) {
	f, err := CompileFilter("(priority>=5)")
	require.NoError(t, err)
	assert.True(t, f.Match(Properties{"priority": 7}))
	assert.False(t, f.Match(Properties{"priority": 2}))
}

func TestFilterNestedCombinators(t *testing.T) {
	f, err := CompileFilter("(&(region=us-east-1)(|(tier=gold)(tier=platinum)))")
	require.NoError(t, err)
	assert.True(t, f.Match(Properties{"region": "us-east-1", "tier": "platinum"}))
	assert.False(t, f.Match(Properties{"region": "eu-west-1", "tier": "platinum"}))
}
