// Package codegen assembles and writes generated file contents with an
// optional identifying signature line — the same responsibility the
// teacher's codegen.WriteToFile carries for Terraform backend blocks,
// generalized here to any builder output.
package codegen

import (
	"fmt"
	"strings"

	"github.com/buildforge/engine/rw"
)

// Signature is the comment-line marker stamped onto generated files,
// unless disabled, so a later run can tell a file was buildforge's own
// output rather than something hand-authored at the same path.
const Signature = "Generated by buildforge. DO NOT EDIT."

// DefaultCommentPrefix is used when a GenerateConfig doesn't specify one.
const DefaultCommentPrefix = "// "

// IfExists mirrors the teacher's if_exists enum for generated files
// that WriteToFile writes directly to disk outside the staged-write
// pipeline. Builders and post-process actions in this module do not use
// WriteToFile: their outputs go through Step.WriteAsBytes and the
// ReaderWriter's staged commit.
type IfExists int

const (
	IfExistsError IfExists = iota
	IfExistsSkip
	IfExistsOverwrite
)

// GenerateConfig describes one generated file.
type GenerateConfig struct {
	CommentPrefix    string
	Contents         string
	DisableSignature bool
	IfExists         IfExists
}

// Stamp renders the final file contents: the signature line (unless
// disabled) followed by the caller's contents.
func Stamp(config GenerateConfig) string {
	if config.DisableSignature {
		return config.Contents
	}
	prefix := config.CommentPrefix
	if prefix == "" {
		prefix = DefaultCommentPrefix
	}
	return fmt.Sprintf("%s%s\n%s", prefix, Signature, config.Contents)
}

// WriteToFile writes a generated file to targetPath via fs, honoring
// IfExists when a file is already there.
func WriteToFile(fs rw.Filesystem, targetPath string, config GenerateConfig) (wrote bool, err error) {
	if fs.Exists(targetPath) {
		switch config.IfExists {
		case IfExistsError:
			return false, GenerateFileExistsError{Path: targetPath}
		case IfExistsSkip:
			return false, nil
		case IfExistsOverwrite:
			// fall through to write
		}
	}
	if err := fs.WriteFile(targetPath, []byte(Stamp(config))); err != nil {
		return false, err
	}
	return true, nil
}

// WasGenerated reports whether the file at path carries buildforge's
// signature on its first line, the same check the teacher uses before
// honoring overwrite_terragrunt/remove_terragrunt.
func WasGenerated(fs rw.Filesystem, path string) (bool, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return false, err
	}
	firstLine, _, _ := strings.Cut(string(data), "\n")
	return strings.HasSuffix(strings.TrimSpace(firstLine), Signature), nil
}
