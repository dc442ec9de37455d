package challenge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDef(key string) Definition {
	return Definition{
		Key:        key,
		Name:       "Test " + key,
		Category:   "Testing",
		Difficulty: 1,
	}
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"valid", validDef("a"), false},
		{"missing key", Definition{Name: "x", Difficulty: 1}, true},
		{"missing name", Definition{Key: "x", Difficulty: 1}, true},
		{"difficulty too low", Definition{Key: "x", Name: "x", Difficulty: 0}, true},
		{"difficulty too high", Definition{Key: "x", Name: "x", Difficulty: 7}, true},
		{"max difficulty", Definition{Key: "x", Name: "x", Difficulty: 6}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	c, err := r.Register(validDef("first"))
	require.NoError(t, err)
	assert.False(t, c.Solved())
	assert.True(t, c.SolvedAt().IsZero())

	_, err = r.Register(validDef("first"))
	assert.Error(t, err, "duplicate keys must be rejected")

	_, err = r.Register(Definition{Key: "bad"})
	assert.Error(t, err)

	got, err := r.Get("first")
	require.NoError(t, err)
	assert.Same(t, c, got)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryListPreservesOrder(t *testing.T) {
	r := NewRegistry()
	keys := []string{"c", "a", "b"}
	for _, k := range keys {
		_, err := r.Register(validDef(k))
		require.NoError(t, err)
	}

	list := r.List()
	require.Len(t, list, 3)
	for i, k := range keys {
		assert.Equal(t, k, list[i].Key)
	}
}

func TestRegistryIsSolvedUnknownKey(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.IsSolved("missing"))
}

func TestRestoreSolved(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(validDef("restored"))
	require.NoError(t, err)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.RestoreSolved("restored", ts))

	assert.True(t, r.IsSolved("restored"))
	c, err := r.Get("restored")
	require.NoError(t, err)
	assert.Equal(t, ts, c.SolvedAt())

	// Replaying must not move the timestamp.
	require.NoError(t, r.RestoreSolved("restored", ts.Add(time.Hour)))
	assert.Equal(t, ts, c.SolvedAt())

	assert.ErrorIs(t, r.RestoreSolved("missing", ts), ErrNotFound)
}

func TestAvailable(t *testing.T) {
	c := &Challenge{Definition: Definition{Key: "x", DisabledEnv: "docker"}}
	assert.True(t, c.Available("local"))
	assert.False(t, c.Available("docker"))
	assert.True(t, c.Available(""), "unset environment disables nothing")

	open := &Challenge{Definition: Definition{Key: "y"}}
	assert.True(t, open.Available("docker"))
	assert.True(t, open.Available(""), "unmarked challenge stays available without an environment")
}
