package builder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/assetgraph"
	"github.com/buildforge/engine/buildstep"
	"github.com/buildforge/engine/rw"
)

func newTestEnv(t *testing.T) (*assetgraph.Graph, *rw.ReaderWriter) {
	t.Helper()
	g := assetgraph.New()
	pg := &asset.PackageGraph{Root: "app", Packages: map[string]asset.Package{
		"app": {Name: "app", RootDir: "/app"},
	}}
	fs := rw.NewMemFilesystem()
	readerWriter := rw.New(g, pg, fs, ".forge/build")
	return g, readerWriter
}

func TestCopyBuilder(t *testing.T) {
	t.Parallel()

	g, readerWriter := newTestEnv(t)
	in := asset.New("app", "lib/a.txt")
	g.Add(assetgraph.NewSource(in, asset.Compute(in, []byte("hello"))))
	readerWriter.FS.WriteFile("/app/lib/a.txt", []byte("hello"))

	outID := asset.New("app", "lib/a.txt.copy")
	step := buildstep.New(g, readerWriter, in, 0, []asset.ID{outID}, false, nil)

	builder, err := NewCopyBuilder(nil)
	require.NoError(t, err)

	res := buildstep.Run(step, "copy", builder)
	require.False(t, res.Failed)

	node, ok := g.Get(outID)
	require.True(t, ok)
	assert.True(t, node.Generated.WasOutput)
}

func TestManifestBuilder(t *testing.T) {
	t.Parallel()

	g, readerWriter := newTestEnv(t)
	a := asset.New("app", "lib/a.txt")
	g.Add(assetgraph.NewSource(a, asset.Compute(a, []byte("hello"))))
	readerWriter.FS.WriteFile("/app/lib/a.txt", []byte("hello"))

	pkgInput := asset.New("app", "$package$")
	g.Add(assetgraph.NewPlaceholder(pkgInput, "$package$"))
	outID := asset.New("app", "lib/manifest.json")

	step := buildstep.New(g, readerWriter, pkgInput, 0, []asset.ID{outID}, false, nil)

	builder, err := NewManifestBuilder(nil)
	require.NoError(t, err)
	res := buildstep.Run(step, "manifest", builder)
	require.False(t, res.Failed)

	node, ok := g.Get(outID)
	require.True(t, ok)
	require.True(t, node.Generated.WasOutput)

	data, err := readerWriter.FS.ReadFile(readerWriter.PathFor(outID, 0, false))
	require.NoError(t, err)

	var entries []manifestEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "lib/a.txt", entries[0].Path)
}

func TestCombiningBuilder(t *testing.T) {
	t.Parallel()

	g, readerWriter := newTestEnv(t)
	a := asset.New("app", "lib/one.partial")
	b := asset.New("app", "lib/two.partial")
	g.Add(assetgraph.NewSource(a, asset.Compute(a, []byte("one"))))
	g.Add(assetgraph.NewSource(b, asset.Compute(b, []byte("two"))))
	readerWriter.FS.WriteFile("/app/lib/one.partial", []byte("one"))
	readerWriter.FS.WriteFile("/app/lib/two.partial", []byte("two"))

	pkgInput := asset.New("app", "$package$")
	g.Add(assetgraph.NewPlaceholder(pkgInput, "$package$"))
	outID := asset.New("app", "lib/combined.txt")

	step := buildstep.New(g, readerWriter, pkgInput, 0, []asset.ID{outID}, false, nil)

	builder, err := NewCombiningBuilder(map[string]any{})
	require.NoError(t, err)
	res := buildstep.Run(step, "combine", builder)
	require.False(t, res.Failed)

	data, err := readerWriter.FS.ReadFile(readerWriter.PathFor(outID, 0, false))
	require.NoError(t, err)
	assert.Contains(t, string(data), "one")
	assert.Contains(t, string(data), "two")
}

func TestStampAction(t *testing.T) {
	t.Parallel()

	g, readerWriter := newTestEnv(t)
	source := asset.New("app", "lib/a.go")
	g.Add(assetgraph.NewSource(source, asset.Compute(source, []byte("package app\n"))))
	readerWriter.FS.WriteFile("/app/lib/a.go", []byte("package app\n"))

	step := buildstep.NewPostProcess(g, readerWriter, source, 0)
	action := NewStampAction("// ")

	outputs, err := buildstep.RunPostProcess(step, action)
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	data, err := readerWriter.FS.ReadFile(readerWriter.PathFor(outputs[0], 0, false))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Generated by buildforge")
}
