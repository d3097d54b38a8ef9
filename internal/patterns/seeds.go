package patterns

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"testmend/internal/logging"
)

// seedFile is the on-disk shape of a discovered-pattern seed pack.
type seedFile struct {
	Version  int                 `yaml:"version"`
	Patterns []DiscoveredPattern `yaml:"patterns"`
}

// LoadSeeds reads a YAML seed pack of discovered patterns. A missing file
// yields an empty set; a malformed one yields an empty set with a warning,
// mirroring the store's corruption handling. Loaded patterns get normalized
// matching keys and derived IDs where the pack omits them.
func LoadSeeds(path string) ([]DiscoveredPattern, error) {
	timer := logging.StartTimer(logging.CategoryStore, "LoadSeeds")
	defer timer.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.StoreDebug("No seed pack at %s", path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read seed pack %s: %w", path, err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		logging.Get(logging.CategoryStore).Warn("Malformed seed pack %s: %v (treating as empty)", path, err)
		return nil, nil
	}

	seeds := make([]DiscoveredPattern, 0, len(sf.Patterns))
	for i, d := range sf.Patterns {
		if d.OriginalText == "" {
			logging.Get(logging.CategoryStore).Warn("Seed %d in %s has no text, skipping", i, path)
			continue
		}
		d.NormalizedText = NormalizeText(d.OriginalText)
		if d.Layer == "" {
			d.Layer = LayerUniversal
		}
		if d.ID == "" {
			d.ID = fmt.Sprintf("seed-%s-%d", d.Layer, i)
		}
		seeds = append(seeds, d)
	}

	logging.Store("Loaded %d discovered patterns from %s", len(seeds), path)
	return seeds, nil
}
