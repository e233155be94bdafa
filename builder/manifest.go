package builder

import (
	"encoding/json"
	"sort"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/cache"
	"github.com/buildforge/engine/phase"
)

// ManifestBuilder is a whole-package builder (§3, "$package$"): it globs
// every visible asset in its package and writes a single digest
// manifest, exercising FindAssets the way a real codegen tool would to
// produce a content-addressed listing of a package's contents.
type ManifestBuilder struct {
	digests *cache.Cache[asset.Digest]
}

// NewManifestBuilder is a phase.Factory. The builder instance it
// returns is reused across every package the phase applies to, so the
// digest cache amortizes across the whole build, not just one package.
func NewManifestBuilder(_ map[string]any) (phase.Builder, error) {
	return &ManifestBuilder{digests: cache.New[asset.Digest]()}, nil
}

type manifestEntry struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
}

// Build implements phase.Builder.
func (b *ManifestBuilder) Build(step phase.Step) error {
	in := step.InputID()

	assets, err := step.FindAssets("**/*", "")
	if err != nil {
		return err
	}

	var entries []manifestEntry
	for _, id := range assets {
		if id == in {
			continue
		}
		if !step.CanRead(id) {
			continue
		}
		data, err := step.ReadAsBytes(id)
		if err != nil {
			continue
		}

		digest, cached := b.digests.Get(id.String())
		if !cached {
			digest = asset.Compute(id, data)
			b.digests.Put(id.String(), digest)
		}
		entries = append(entries, manifestEntry{Path: id.Path, Digest: digest.String()})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	outID := asset.New(in.Package, "lib/manifest.json")
	return step.WriteAsString(outID, string(out)+"\n")
}
