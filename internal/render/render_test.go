package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ianremillard/renderfarm/internal/proto"
)

func TestOutputTemplateAndResolvedOutputPath(t *testing.T) {
	tmpl := OutputTemplate("/work/abc", proto.ExtPNG)
	require.Equal(t, "/work/abc/####.png", tmpl)

	resolved := ResolvedOutputPath("/work/abc", 42, proto.ExtPNG)
	require.Equal(t, "/work/abc/0042.png", resolved)
}

func TestBundlePath(t *testing.T) {
	require.Equal(t, "/work/abc/project.bundle", BundlePath("/work/abc", "bundle"))
}

func writeStubRenderer(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestInvokeSucceedsWhenOutputFileAppears(t *testing.T) {
	dir := t.TempDir()
	rendererPath := writeStubRenderer(t, `
shift; bundle="$1"; shift
shift; template="$1"; shift
shift; frame="$1"
frame4=$(printf "%04d" "$frame")
out=$(echo "$template" | sed "s/####/$frame4/")
echo "pixels" > "$out"
`)
	bundle := filepath.Join(dir, "scene.bundle")
	require.NoError(t, os.WriteFile(bundle, []byte("scene"), 0o644))

	outputTemplate := OutputTemplate(dir, proto.ExtPNG)
	ok, err := Invoke(context.Background(), rendererPath, bundle, 9, outputTemplate, false)
	require.NoError(t, err)
	require.True(t, ok)

	_, statErr := os.Stat(ResolvedOutputPath(dir, 9, proto.ExtPNG))
	require.NoError(t, statErr)
}

func TestInvokeFailsWhenRendererExitsNonZero(t *testing.T) {
	dir := t.TempDir()
	rendererPath := writeStubRenderer(t, "exit 1\n")
	bundle := filepath.Join(dir, "scene.bundle")
	require.NoError(t, os.WriteFile(bundle, []byte("scene"), 0o644))

	ok, err := Invoke(context.Background(), rendererPath, bundle, 1, OutputTemplate(dir, proto.ExtPNG), false)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvokeFailsWhenExpectedOutputMissing(t *testing.T) {
	dir := t.TempDir()
	rendererPath := writeStubRenderer(t, "exit 0\n")
	bundle := filepath.Join(dir, "scene.bundle")
	require.NoError(t, os.WriteFile(bundle, []byte("scene"), 0o644))

	ok, err := Invoke(context.Background(), rendererPath, bundle, 1, OutputTemplate(dir, proto.ExtPNG), false)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvokeRejectsTemplateMissingPlaceholder(t *testing.T) {
	dir := t.TempDir()
	rendererPath := writeStubRenderer(t, "exit 0\n")
	bundle := filepath.Join(dir, "scene.bundle")
	require.NoError(t, os.WriteFile(bundle, []byte("scene"), 0o644))

	_, err := Invoke(context.Background(), rendererPath, bundle, 1, filepath.Join(dir, "flat.png"), false)
	require.Error(t, err)
}
