package codegen

import (
	"testing"

	"github.com/buildforge/engine/rw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStampAddsSignature(t *testing.T) {
	t.Parallel()

	out := Stamp(GenerateConfig{Contents: "package foo\n"})
	assert.Contains(t, out, Signature)
	assert.Contains(t, out, "package foo")
}

func TestStampDisabled(t *testing.T) {
	t.Parallel()

	out := Stamp(GenerateConfig{Contents: "package foo\n", DisableSignature: true})
	assert.Equal(t, "package foo\n", out)
}

func TestWriteToFileIfExistsError(t *testing.T) {
	t.Parallel()

	fs := rw.NewMemFilesystem()
	fs.Seed("out.go", []byte("existing"))

	_, err := WriteToFile(fs, "out.go", GenerateConfig{Contents: "new", IfExists: IfExistsError})
	require.Error(t, err)
	require.IsType(t, GenerateFileExistsError{}, err)
}

func TestWriteToFileIfExistsSkip(t *testing.T) {
	t.Parallel()

	fs := rw.NewMemFilesystem()
	fs.Seed("out.go", []byte("existing"))

	wrote, err := WriteToFile(fs, "out.go", GenerateConfig{Contents: "new", IfExists: IfExistsSkip})
	require.NoError(t, err)
	assert.False(t, wrote)

	data, _ := fs.ReadFile("out.go")
	assert.Equal(t, "existing", string(data))
}

func TestWriteToFileIfExistsOverwrite(t *testing.T) {
	t.Parallel()

	fs := rw.NewMemFilesystem()
	fs.Seed("out.go", []byte("existing"))

	wrote, err := WriteToFile(fs, "out.go", GenerateConfig{Contents: "new", IfExists: IfExistsOverwrite})
	require.NoError(t, err)
	assert.True(t, wrote)

	ok, err := WasGenerated(fs, "out.go")
	require.NoError(t, err)
	assert.True(t, ok)
}
