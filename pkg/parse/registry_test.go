package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildResolvesKnownTransformers(t *testing.T) {
	chain, err := Build([]Spec{
		{Name: "strip-hash-comments"},
		{Name: "append-slash32"},
	})
	require.NoError(t, err)
	out := run(chain, "1.2.3.4 # comment\n")
	assert.Equal(t, []string{"1.2.3.4/32"}, out)
}

func TestBuildFailsOnUnknownTransformer(t *testing.T) {
	_, err := Build([]Spec{{Name: "not-a-real-transformer"}})
	require.Error(t, err)
}

func TestBuildFailsOnMissingArgument(t *testing.T) {
	_, err := Build([]Spec{{Name: "csv-column"}})
	require.Error(t, err)
}

func TestBuildFailsOnNonIntegerArgument(t *testing.T) {
	_, err := Build([]Spec{{Name: "csv-column", Args: []string{"not-a-number"}}})
	require.Error(t, err)
}

func TestBuildCSVColumnWithArgs(t *testing.T) {
	chain, err := Build([]Spec{{Name: "csv-column", Args: []string{"1"}}})
	require.NoError(t, err)
	out := run(chain, "a,1.2.3.4,b\n")
	assert.Equal(t, []string{"1.2.3.4"}, out)
}

func TestBuildCSVStatusFilterWithArgs(t *testing.T) {
	chain, err := Build([]Spec{{Name: "csv-status-filter", Args: []string{"1", "0", "online"}}})
	require.NoError(t, err)
	out := run(chain, "1.2.3.4,online\n5.6.7.8,offline\n")
	assert.Equal(t, []string{"1.2.3.4"}, out)
}

func TestNamesSortedAndNonEmpty(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.LessOrEqual(t, names[i-1], names[i])
	}
}
