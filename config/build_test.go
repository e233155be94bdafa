package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/engine/phase"
)

const sampleHCL = `
cache_dir = ".forge/cache"

phase "copy" {
  builder     = "copy"
  generate_for = ["lib/**/*.txt"]
  extensions = {
    ".txt" = [".txt.copy"]
  }
  options = {
    verbose = true
  }
}

phase "manifest" {
  builder       = "manifest"
  whole_package = true
  extensions = {
    "$package$" = ["lib/manifest.json"]
  }
}

postprocess "stamp" {
  applies_to = ["**/*.go"]
}
`

func TestLoadBuildConfig(t *testing.T) {
	t.Parallel()

	bc, err := LoadBuildConfig([]byte(sampleHCL), "build.forge.hcl")
	require.NoError(t, err)

	assert.Equal(t, ".forge/cache", bc.CacheDir)
	require.Len(t, bc.Phases, 2)

	copyPhase := bc.Phases[0]
	assert.Equal(t, "copy", copyPhase.Builder)
	assert.Equal(t, []string{".txt.copy"}, copyPhase.Extensions[".txt"])
	assert.Equal(t, true, copyPhase.Options["verbose"])

	manifestPhase := bc.Phases[1]
	assert.True(t, manifestPhase.WholePackage)

	require.Len(t, bc.PostProcess, 1)
	assert.Equal(t, "stamp", bc.PostProcess[0].Name)
}

func TestCompileResolvesBuildersAndActions(t *testing.T) {
	t.Parallel()

	bc, err := LoadBuildConfig([]byte(sampleHCL), "build.forge.hcl")
	require.NoError(t, err)

	builders := map[string]phase.Factory{
		"copy":     func(map[string]any) (phase.Builder, error) { return stubBuilder{}, nil },
		"manifest": func(map[string]any) (phase.Builder, error) { return stubBuilder{}, nil },
	}
	actions := map[string]func(phase.Step) error{
		"stamp": func(phase.Step) error { return nil },
	}

	phases, err := Compile(bc, builders, actions)
	require.NoError(t, err)
	require.Len(t, phases, 3) // 2 in-build phases + 1 post-build phase
}

func TestCompileFailsOnUnregisteredBuilder(t *testing.T) {
	t.Parallel()

	bc, err := LoadBuildConfig([]byte(sampleHCL), "build.forge.hcl")
	require.NoError(t, err)

	_, err = Compile(bc, map[string]phase.Factory{}, map[string]func(phase.Step) error{"stamp": func(phase.Step) error { return nil }})
	require.Error(t, err)
}

type stubBuilder struct{}

func (stubBuilder) Build(phase.Step) error { return nil }
