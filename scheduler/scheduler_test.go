package scheduler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/assetgraph"
	"github.com/buildforge/engine/forgeerr"
	"github.com/buildforge/engine/options"
	"github.com/buildforge/engine/phase"
	"github.com/buildforge/engine/rw"
)

type upperBuilder struct{}

func (upperBuilder) Build(step phase.Step) error {
	in := step.InputID()
	data, err := step.ReadAsBytes(in)
	if err != nil {
		return err
	}
	out := asset.New(in.Package, in.Path+".upper")
	return step.WriteAsString(out, string(data)+"!")
}

func newUpperFactory(_ map[string]any) (phase.Builder, error) { return upperBuilder{}, nil }

type chainBuilder struct{ fromExt, toExt string }

func (b chainBuilder) Build(step phase.Step) error {
	in := step.InputID()
	data, err := step.ReadAsBytes(in)
	if err != nil {
		return err
	}
	prefix := strings.TrimSuffix(in.Path, b.fromExt)
	out := asset.New(in.Package, prefix+b.toExt)
	return step.WriteAsString(out, string(data)+b.toExt)
}

func testEnv(t *testing.T) (*assetgraph.Graph, *rw.ReaderWriter, *asset.PackageGraph) {
	t.Helper()
	pg := &asset.PackageGraph{Root: "app", Packages: map[string]asset.Package{
		"app": {Name: "app", RootDir: "/app"},
	}}
	g := assetgraph.New()
	fs := rw.NewMemFilesystem()
	readerWriter := rw.New(g, pg, fs, ".forge/build")
	return g, readerWriter, pg
}

func TestSchedulerRunsSinglePhase(t *testing.T) {
	t.Parallel()

	g, readerWriter, pg := testEnv(t)
	in := asset.New("app", "lib/a.txt")
	g.Add(assetgraph.NewSource(in, asset.Compute(in, []byte("hi"))))
	readerWriter.FS.WriteFile("/app/lib/a.txt", []byte("hi"))

	phases, err := phase.Compile([]phase.Phase{
		phase.In(phase.InBuildPhase{
			BuilderKey: "upper",
			Factory:    newUpperFactory,
			Extensions: phase.ExtensionMap{".txt": {".txt.upper"}},
		}),
	})
	require.NoError(t, err)

	sched := New(g, readerWriter, pg, phases, options.New("/app"))
	summary, err := sched.Run(context.Background())
	require.NoError(t, err)
	require.False(t, summary.Failed)
	require.Len(t, summary.Results, 1)

	outID := asset.New("app", "lib/a.txt.upper")
	node, ok := g.Get(outID)
	require.True(t, ok)
	assert.True(t, node.Generated.WasOutput)

	data, err := readerWriter.FS.ReadFile(readerWriter.PathFor(outID, 0, false))
	require.NoError(t, err)
	assert.Equal(t, "hi!", string(data))
}

// TestSchedulerEscalatesEarlierPhase exercises §4.5: a later phase reads
// an asset an earlier phase produces but has not yet run (because it is
// optional), and the scheduler runs it on demand.
func TestSchedulerEscalatesEarlierPhase(t *testing.T) {
	t.Parallel()

	g, readerWriter, pg := testEnv(t)
	in := asset.New("app", "lib/a.txt")
	g.Add(assetgraph.NewSource(in, asset.Compute(in, []byte("x"))))
	readerWriter.FS.WriteFile("/app/lib/a.txt", []byte("x"))

	step1Factory := func(_ map[string]any) (phase.Builder, error) {
		return chainBuilder{toExt: ".1"}, nil
	}
	step2Factory := func(_ map[string]any) (phase.Builder, error) {
		return readThenChain{}, nil
	}

	phases, err := phase.Compile([]phase.Phase{
		phase.In(phase.InBuildPhase{
			BuilderKey: "step1",
			Factory:    step1Factory,
			IsOptional: true,
			Extensions: phase.ExtensionMap{".txt": {".txt.1"}},
		}),
		phase.In(phase.InBuildPhase{
			BuilderKey: "step2",
			Factory:    step2Factory,
			Extensions: phase.ExtensionMap{".txt": {".txt.2"}},
		}),
	})
	require.NoError(t, err)

	sched := New(g, readerWriter, pg, phases, options.New("/app"))
	summary, err := sched.Run(context.Background())
	require.NoError(t, err)
	require.False(t, summary.Failed)

	escalated := asset.New("app", "lib/a.txt.1")
	node, ok := g.Get(escalated)
	require.True(t, ok, "optional phase output should exist after escalation")
	assert.True(t, node.Generated.WasOutput)
}

// readThenChain reads the sibling output an earlier optional phase would
// produce, forcing escalation, then writes its own declared output.
type readThenChain struct{}

func (readThenChain) Build(step phase.Step) error {
	in := step.InputID()
	dep := asset.New(in.Package, in.Path+".1")
	if !step.CanRead(dep) {
		return forgeerr.AssetNotFound{Asset: dep.String()}
	}
	out := asset.New(in.Package, in.Path+".2")
	return step.WriteAsString(out, "chained")
}

// TestSchedulerSeedsCandidatesThroughOptionalChain exercises the case
// where a non-optional phase's own buildExtensions pattern only matches
// a path two *optional* phases upstream would produce — nothing but the
// original source exists in the graph when the non-optional phase's
// candidates are computed, so the scheduler must anticipate the chain
// rather than rely on graph nodes that do not exist yet.
func TestSchedulerSeedsCandidatesThroughOptionalChain(t *testing.T) {
	t.Parallel()

	g, readerWriter, pg := testEnv(t)
	in := asset.New("app", "lib/a.txt")
	g.Add(assetgraph.NewSource(in, asset.Compute(in, []byte("x"))))
	readerWriter.FS.WriteFile("/app/lib/a.txt", []byte("x"))

	factory := func(fromExt, toExt string) phase.Factory {
		return func(_ map[string]any) (phase.Builder, error) {
			return chainBuilder{fromExt: fromExt, toExt: toExt}, nil
		}
	}

	phases, err := phase.Compile([]phase.Phase{
		phase.In(phase.InBuildPhase{
			BuilderKey: "step1",
			Factory:    factory("", ".1"),
			IsOptional: true,
			Extensions: phase.ExtensionMap{".txt": {".txt.1"}},
		}),
		phase.In(phase.InBuildPhase{
			BuilderKey: "step2",
			Factory:    factory(".1", ".2"),
			IsOptional: true,
			Extensions: phase.ExtensionMap{".txt.1": {".txt.2"}},
		}),
		phase.In(phase.InBuildPhase{
			BuilderKey: "step3",
			Factory:    factory(".2", ".3"),
			Extensions: phase.ExtensionMap{".txt.2": {".txt.3"}},
		}),
	})
	require.NoError(t, err)

	sched := New(g, readerWriter, pg, phases, options.New("/app"))
	summary, err := sched.Run(context.Background())
	require.NoError(t, err)
	require.False(t, summary.Failed)

	for _, path := range []string{"lib/a.txt.1", "lib/a.txt.2", "lib/a.txt.3"} {
		node, ok := g.Get(asset.New("app", path))
		require.True(t, ok, "%s should have been produced via escalation", path)
		assert.True(t, node.Generated.WasOutput)
	}
}

func TestSchedulerWholePackageBuilder(t *testing.T) {
	t.Parallel()

	g, readerWriter, pg := testEnv(t)
	g.Add(assetgraph.NewPlaceholder(asset.New("app", "$package$"), "$package$"))

	factory := func(_ map[string]any) (phase.Builder, error) { return wholePkgBuilder{}, nil }
	phases, err := phase.Compile([]phase.Phase{
		phase.In(phase.InBuildPhase{
			BuilderKey:   "manifest",
			Factory:      factory,
			WholePackage: true,
			Extensions:   phase.ExtensionMap{"$package$": {"lib/out.txt"}},
		}),
	})
	require.NoError(t, err)

	sched := New(g, readerWriter, pg, phases, options.New("/app"))
	summary, err := sched.Run(context.Background())
	require.NoError(t, err)
	require.False(t, summary.Failed)

	outID := asset.New("app", "lib/out.txt")
	node, ok := g.Get(outID)
	require.True(t, ok)
	assert.True(t, node.Generated.WasOutput)
}

type wholePkgBuilder struct{}

func (wholePkgBuilder) Build(step phase.Step) error {
	in := step.InputID()
	out := asset.New(in.Package, "lib/out.txt")
	return step.WriteAsString(out, "ok")
}

func TestSchedulerPostProcessPhase(t *testing.T) {
	t.Parallel()

	g, readerWriter, pg := testEnv(t)
	src := asset.New("app", "lib/a.go")
	g.Add(assetgraph.NewSource(src, asset.Compute(src, []byte("package app"))))
	readerWriter.FS.WriteFile("/app/lib/a.go", []byte("package app"))

	action := phase.PostProcessAction{
		Key:       "stamp",
		AppliesTo: phase.InputSet{Include: []string{"**/*.go"}},
		Run: func(step phase.Step) error {
			in := step.InputID()
			data, err := step.ReadAsBytes(in)
			if err != nil {
				return err
			}
			out := asset.New(in.Package, in.Path+".stamped")
			return step.WriteAsString(out, "// stamped\n"+string(data))
		},
	}

	phases, err := phase.Compile([]phase.Phase{phase.Post(phase.PostBuildPhase{Actions: []phase.PostProcessAction{action}})})
	require.NoError(t, err)

	sched := New(g, readerWriter, pg, phases, options.New("/app"))
	summary, err := sched.Run(context.Background())
	require.NoError(t, err)
	require.False(t, summary.Failed)

	anchorID := asset.New("app", "$postprocess$stamp$lib/a.go")
	node, ok := g.Get(anchorID)
	require.True(t, ok)
	require.Equal(t, assetgraph.KindPostProcessAnchor, node.Kind)
	assert.Len(t, node.PostProcessAnchor.Outputs, 1)
}
