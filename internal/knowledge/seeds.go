// ABOUTME: TOML seed packs: declarative knowledge definitions loaded from a
// ABOUTME: directory at startup, with an embedded default pack as fallback.

package knowledge

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed seeds/*.toml
var defaultSeedFS embed.FS

// SeedPack is one TOML seed file: pack metadata plus record tables. The table
// a record appears under determines its kind.
type SeedPack struct {
	Name        string    `toml:"name"`
	Description string    `toml:"description"`
	Agents      []*Record `toml:"agents"`
	Functions   []*Record `toml:"functions"`
	Rules       []*Record `toml:"rules"`
	Facts       []*Record `toml:"facts"`
	Examples    []*Record `toml:"examples"`
}

// Records returns the pack's records with kinds stamped from table position.
func (p *SeedPack) Records() []*Record {
	var out []*Record
	stamp := func(recs []*Record, kind Kind) {
		for _, rec := range recs {
			rec.Kind = kind
			out = append(out, rec)
		}
	}
	stamp(p.Agents, KindAgent)
	stamp(p.Functions, KindFunction)
	stamp(p.Rules, KindRule)
	stamp(p.Facts, KindFact)
	stamp(p.Examples, KindExample)
	return out
}

// ParseSeedPack decodes one TOML seed document.
func ParseSeedPack(data []byte) (*SeedPack, error) {
	var pack SeedPack
	if _, err := toml.Decode(string(data), &pack); err != nil {
		return nil, fmt.Errorf("parsing seed pack: %w", err)
	}
	return &pack, nil
}

// LoadSeedFS reads every *.toml pack at the root of fsys and returns the
// combined records.
func LoadSeedFS(fsys fs.FS) ([]*Record, error) {
	paths, err := fs.Glob(fsys, "*.toml")
	if err != nil {
		return nil, fmt.Errorf("globbing seed packs: %w", err)
	}

	var out []*Record
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("reading seed pack %s: %w", path, err)
		}
		pack, err := ParseSeedPack(data)
		if err != nil {
			return nil, fmt.Errorf("seed pack %s: %w", path, err)
		}
		out = append(out, pack.Records()...)
	}
	return out, nil
}

// LoadSeedDir loads every seed pack in a directory on disk.
func LoadSeedDir(dir string) ([]*Record, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("seed directory: %w", err)
	}
	return LoadSeedFS(os.DirFS(dir))
}

// DefaultSeeds returns the embedded default seed pack, so a gateway with no
// seed directory still answers questions.
func DefaultSeeds() ([]*Record, error) {
	sub, err := fs.Sub(defaultSeedFS, "seeds")
	if err != nil {
		return nil, fmt.Errorf("embedded seeds: %w", err)
	}
	return LoadSeedFS(sub)
}
