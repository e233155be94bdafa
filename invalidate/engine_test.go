package invalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/assetgraph"
	"github.com/buildforge/engine/rw"
)

type fakeScanner struct {
	byPkg map[string][]asset.ID
}

func (f *fakeScanner) Sources(pkg asset.Package) ([]asset.ID, error) {
	return f.byPkg[pkg.Name], nil
}

type fakeReader struct {
	files map[asset.ID][]byte
}

func (f *fakeReader) ReadFile(id asset.ID) ([]byte, error) {
	data, ok := f.files[id]
	if !ok {
		return nil, assetNotFound{id}
	}
	return data, nil
}

type assetNotFound struct{ id asset.ID }

func (e assetNotFound) Error() string { return "not found: " + e.id.String() }

func newTestEngine(t *testing.T) (*Engine, *fakeReader, *fakeScanner) {
	t.Helper()
	pg := &asset.PackageGraph{Root: "app", Packages: map[string]asset.Package{
		"app": {Name: "app", RootDir: "/app"},
	}}
	g := assetgraph.New()
	fs := rw.NewMemFilesystem()
	readerWriter := rw.New(g, pg, fs, ".forge/build")
	reader := &fakeReader{files: map[asset.ID][]byte{}}
	scanner := &fakeScanner{byPkg: map[string][]asset.ID{}}
	eng := New(g, pg, readerWriter, reader, scanner, nil)
	return eng, reader, scanner
}

func TestReconcileAddsNewSource(t *testing.T) {
	t.Parallel()

	eng, reader, scanner := newTestEngine(t)
	id := asset.New("app", "lib/a.txt")
	reader.files[id] = []byte("hello")
	scanner.byPkg["app"] = []asset.ID{id}

	fullRebuild, err := eng.Reconcile(nil)
	require.NoError(t, err)
	require.False(t, fullRebuild)

	node, ok := eng.Graph.Get(id)
	require.True(t, ok)
	assert.Equal(t, assetgraph.KindSource, node.Kind)
}

func TestReconcileDetectsSourceDeletion(t *testing.T) {
	t.Parallel()

	eng, _, scanner := newTestEngine(t)
	id := asset.New("app", "lib/a.txt")
	eng.Graph.Add(assetgraph.NewSource(id, asset.Compute(id, []byte("hello"))))
	scanner.byPkg["app"] = nil

	fullRebuild, err := eng.Reconcile(nil)
	require.NoError(t, err)
	require.False(t, fullRebuild)

	node, ok := eng.Graph.Get(id)
	require.True(t, ok)
	assert.Equal(t, assetgraph.KindMissingSource, node.Kind)
}

func TestReconcileForcesFullRebuildOnInternalChange(t *testing.T) {
	t.Parallel()

	eng, reader, _ := newTestEngine(t)
	internalID := asset.New("app", "build.forge.hcl")
	eng.Graph.Add(assetgraph.NewInternal(internalID, asset.Compute(internalID, []byte("old"))))
	reader.files[internalID] = []byte("new")

	fullRebuild, err := eng.Reconcile([]asset.ID{internalID})
	require.NoError(t, err)
	assert.True(t, fullRebuild)
}

func TestReconcileMarksDirtyWhenOutputMissingFromDisk(t *testing.T) {
	t.Parallel()

	eng, reader, scanner := newTestEngine(t)
	in := asset.New("app", "lib/a.txt")
	out := asset.New("app", "lib/a.txt.copy")
	reader.files[in] = []byte("x")
	scanner.byPkg["app"] = []asset.ID{in}
	eng.Graph.Add(assetgraph.NewSource(in, asset.Compute(in, []byte("x"))))

	gen := assetgraph.NewGenerated(out, in, 0, false)
	gen.Generated.Result = true
	gen.Generated.WasOutput = true
	eng.Graph.Add(gen)

	fullRebuild, err := eng.Reconcile(nil)
	require.NoError(t, err)
	require.False(t, fullRebuild)

	assert.True(t, eng.Graph.IsDirty(out))
}
