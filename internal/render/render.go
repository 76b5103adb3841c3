// Package render invokes the external renderer subprocess: a black-box
// command that consumes a bundle file and a frame number and writes an
// image. Its stdout/stderr are discarded unless the caller asks for them to
// be mirrored to stderr; success is a zero exit code
// combined with the existence of the expected output file.
package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ianremillard/renderfarm/internal/proto"
	"github.com/ianremillard/renderfarm/internal/rfmetrics"
)

// frameTemplatePlaceholder is the frame-number placeholder the renderer's
// --render-output template uses, per the external interface contract.
const frameTemplatePlaceholder = "####"

// Invoke runs the renderer against bundlePath for frame, writing its output
// to the path outputTemplate names once the zero-padded frame number
// replaces its #### placeholder. It reports failure (not an error) when the renderer
// exits non-zero or the expected output file is missing — both are
// ordinary per-frame outcomes, not session-fatal errors.
//
// When echo is true the subprocess's stdout/stderr are additionally
// mirrored to the worker's own stderr; callers only set this when running
// verbosely against an interactive terminal, since the renderer's own
// output is otherwise noise.
func Invoke(ctx context.Context, rendererPath, bundlePath string, frame proto.Frame, outputTemplate string, echo bool) (ok bool, err error) {
	if !strings.Contains(outputTemplate, frameTemplatePlaceholder) {
		return false, fmt.Errorf("render: output template %q missing %s placeholder", outputTemplate, frameTemplatePlaceholder)
	}

	cmd := exec.CommandContext(ctx, rendererPath,
		"--background",
		bundlePath,
		"--render-output", outputTemplate,
		"--render-frame", strconv.FormatUint(uint64(frame), 10),
	)
	if echo {
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	}

	start := time.Now()
	runErr := cmd.Run()
	rfmetrics.RenderDuration.Observe(time.Since(start).Seconds())

	if runErr != nil {
		return false, nil
	}

	resolved := strings.ReplaceAll(outputTemplate, frameTemplatePlaceholder, fmt.Sprintf("%04d", frame))
	if _, statErr := os.Stat(resolved); statErr != nil {
		return false, nil
	}
	return true, nil
}

// OutputTemplate builds the --render-output template for outputs in
// workingDir, using the #### placeholder the renderer substitutes internally.
func OutputTemplate(workingDir string, ext proto.FileExt) string {
	return fmt.Sprintf("%s/%s.%s", workingDir, frameTemplatePlaceholder, ext)
}

// ResolvedOutputPath builds the concrete working-directory output path for
// a frame, per the spec's <working>/<uuid>/<frame:04>.<ext> convention.
func ResolvedOutputPath(workingDir string, frame proto.Frame, ext proto.FileExt) string {
	return fmt.Sprintf("%s/%04d.%s", workingDir, frame, ext)
}

// BundlePath builds the working-directory bundle path, per
// <working>/<uuid>/project.<bundle-ext> — the bundle extension is fixed
// regardless of output format, since the bundle is an opaque scene file
// consumed by the renderer rather than an output image.
func BundlePath(workingDir, bundleExt string) string {
	return fmt.Sprintf("%s/project.%s", workingDir, bundleExt)
}
