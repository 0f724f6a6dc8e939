package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NINAnor/tabmon-species-api/internal/validation"
)

type clip struct {
	filename string
	start    float64
}

func key(c clip) validation.ClipKey {
	return validation.ClipKey{Filename: c.filename, StartTime: c.start}
}

func candidates() []clip {
	return []clip{
		{"a.wav", 3},
		{"a.wav", 9},
		{"b.wav", 0},
		{"c.wav", 12},
	}
}

func validatedSet(clips ...clip) validation.ClipSet {
	set := make(validation.ClipSet, len(clips))
	for _, c := range clips {
		set[key(c)] = struct{}{}
	}
	return set
}

func TestRemainingEqualsSetDifference(t *testing.T) {
	t.Parallel()

	cands := candidates()
	assert.Equal(t, 4, Remaining(cands, nil, key))
	assert.Equal(t, 2, Remaining(cands, validatedSet(cands[0], cands[2]), key))
	// Validations for clips outside the candidate set do not count.
	assert.Equal(t, 4, Remaining(cands, validatedSet(clip{"z.wav", 1}), key))
	assert.Equal(t, 0, Remaining(cands, validatedSet(cands...), key))
}

func TestPickFirstIsDeterministic(t *testing.T) {
	t.Parallel()

	cands := candidates()
	first, ok := PickFirst(cands, nil, key)
	require.True(t, ok)
	assert.Equal(t, cands[0], first)

	next, ok := PickFirst(cands, validatedSet(cands[0], cands[1]), key)
	require.True(t, ok)
	assert.Equal(t, cands[2], next)
}

func TestPickReportsCompletionWhenExhausted(t *testing.T) {
	t.Parallel()

	cands := candidates()
	all := validatedSet(cands...)

	_, ok := PickFirst(cands, all, key)
	assert.False(t, ok)

	_, ok = PickRandom(NewPicker(1), cands, all, key)
	assert.False(t, ok)

	_, ok = PickFirst([]clip{}, nil, key)
	assert.False(t, ok)
}

func TestPickRandomSkipsValidated(t *testing.T) {
	t.Parallel()

	cands := candidates()
	validated := validatedSet(cands[0], cands[1], cands[3])
	p := NewPicker(7)
	for range 20 {
		picked, ok := PickRandom(p, cands, validated, key)
		require.True(t, ok)
		assert.Equal(t, cands[2], picked)
	}
}

func TestPickRandomReproducibleWithFixedSeed(t *testing.T) {
	t.Parallel()

	cands := candidates()
	var first, second []clip
	p1 := NewPicker(42)
	p2 := NewPicker(42)
	for range 32 {
		c1, ok := PickRandom(p1, cands, nil, key)
		require.True(t, ok)
		first = append(first, c1)

		c2, ok := PickRandom(p2, cands, nil, key)
		require.True(t, ok)
		second = append(second, c2)
	}
	assert.Equal(t, first, second)

	p3 := NewPicker(43)
	var third []clip
	for range 32 {
		c3, ok := PickRandom(p3, cands, nil, key)
		require.True(t, ok)
		third = append(third, c3)
	}
	assert.NotEqual(t, first, third)
}
