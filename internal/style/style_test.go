package style

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModifierFallsBackToNatural(t *testing.T) {
	assert.Equal(t, Modifier(Natural), Modifier("watercolor"))
	assert.Equal(t, Modifier(Natural), Modifier(""))
	assert.NotEqual(t, Modifier(Natural), Modifier(Anime))
}

func TestAllMatchesModifiers(t *testing.T) {
	all := All()
	require.Len(t, all, 4)
	for _, info := range all {
		assert.True(t, Known(info.Key), info.Key)
		assert.NotEmpty(t, info.Name)
	}
	assert.Equal(t, Natural, all[0].Key)

	// returned slice is a copy
	all[0].Name = "changed"
	assert.Equal(t, "Natural", All()[0].Name)
}

func TestParse(t *testing.T) {
	p, err := Parse("ghibli")
	require.NoError(t, err)
	assert.Equal(t, Ghibli, p)

	_, err = Parse("Ghibli")
	assert.Error(t, err)
	_, err = Parse("")
	assert.Error(t, err)
}
