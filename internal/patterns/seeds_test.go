package patterns

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testmend/internal/primitive"
)

const sampleSeedPack = `
version: 1
patterns:
  - id: universal-click-login
    text: "Click the login button"
    layer: universal
    category: auth
    confidence: 0.8
    action:
      type: click
      selector: "[data-testid=\"login\"]"
  - text: "Accept all cookies"
    confidence: 0.6
    action_tag: click
    selector_hints:
      - strategy: text
        value: "Accept all"
        confidence: 0.9
  - layer: framework
    confidence: 0.5
`

func TestLoadSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "discovered.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSeedPack), 0644))

	seeds, err := LoadSeeds(path)
	require.NoError(t, err)
	require.Len(t, seeds, 2, "the seed without text is skipped")

	first := seeds[0]
	assert.Equal(t, "universal-click-login", first.ID)
	assert.Equal(t, "click the login button", first.NormalizedText)
	assert.Equal(t, LayerUniversal, first.Layer)
	assert.Equal(t, primitive.ActionClick, first.ResolvedPrimitive().Type)
	assert.Equal(t, `[data-testid="login"]`, first.ResolvedPrimitive().Selector)

	second := seeds[1]
	assert.Equal(t, "seed-universal-1", second.ID, "missing id and layer get defaults")
	assert.Equal(t, LayerUniversal, second.Layer)
	resolved := second.ResolvedPrimitive()
	assert.Equal(t, primitive.ActionClick, resolved.Type)
	assert.Equal(t, "text=Accept all", resolved.Selector, "bare action tags resolve through selector hints")
}

func TestLoadSeedsMissingFile(t *testing.T) {
	seeds, err := LoadSeeds(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Nil(t, seeds)
}

func TestLoadSeedsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "discovered.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patterns: {not: [valid"), 0644))

	seeds, err := LoadSeeds(path)
	require.NoError(t, err, "a malformed pack degrades to empty, mirroring store corruption handling")
	assert.Empty(t, seeds)
}
