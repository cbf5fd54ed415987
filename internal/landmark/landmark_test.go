package landmark

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(ReferencePoint)
	assert.True(t, errors.Is(err, ErrMissingLandmark))

	r.Set(ReferencePoint, 12)
	r.Set("Tip", 40)
	i, err := r.Get(ReferencePoint)
	require.NoError(t, err)
	assert.Equal(t, 12, i)
	assert.Equal(t, []Name{ReferencePoint, "Tip"}, r.Names())

	dup := r.Clone()
	dup.Set("Tip", 1)
	dup.Remove(ReferencePoint)
	assert.Equal(t, 40, r.Map()["Tip"])
	assert.True(t, r.Has(ReferencePoint))
	assert.False(t, dup.Has(ReferencePoint))
}

func TestMarkText(t *testing.T) {
	for _, m := range Marks {
		b, err := m.MarshalText()
		require.NoError(t, err)
		var back OrientationMark
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, m, back)
	}
	_, err := ParseMark("TOP")
	assert.NoError(t, err)
	_, err = ParseMark("middle")
	assert.Error(t, err)
}

func TestBuiltinRuleSets(t *testing.T) {
	for _, name := range BuiltinNames() {
		rs, err := Builtin(name)
		require.NoError(t, err)
		assert.NoError(t, rs.Validate(), name)
	}
	_, err := Builtin("hamster")
	assert.Error(t, err)

	pig := PigSperm()
	assert.Equal(t, PriorityX, pig.Priority)
	assert.Equal(t, Name("Tail"), pig.ReferenceName())
}

func TestParseRuleSet(t *testing.T) {
	data := []byte(`
name: custom
priority: x
marks:
  reference: Acrosome
  left: Acrosome
  right: Tail
`)
	rs, err := ParseRuleSet(data)
	require.NoError(t, err)
	assert.Equal(t, "custom", rs.Name)
	assert.Equal(t, PriorityX, rs.Priority)
	n, ok := rs.Landmark(Right)
	assert.True(t, ok)
	assert.Equal(t, Name("Tail"), n)

	_, err = ParseRuleSet([]byte("name: broken\nmarks:\n  top: A\n"))
	assert.Error(t, err, "reference mark is mandatory")

	_, err = ParseRuleSet([]byte("name: odd\nmarks:\n  reference: A\n  centre: B\n"))
	assert.Error(t, err)
}

func TestRuleSetYAMLRoundTripAndLoad(t *testing.T) {
	out, err := yaml.Marshal(MouseSperm())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mouse.yaml")
	require.NoError(t, os.WriteFile(path, out, 0644))

	rs, err := LoadRuleSet(path)
	require.NoError(t, err)
	assert.Equal(t, MouseSperm(), rs)

	rs, err = LoadRuleSet("round")
	require.NoError(t, err)
	assert.Equal(t, "round", rs.Name)

	_, err = LoadRuleSet(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
