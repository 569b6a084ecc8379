// Package archive wraps 7z as a streaming compression engine: callers get a
// Generator (matching pkg/task's progress-yielding shape) that compresses a
// path under a server's data directory into a timestamped .7z file and
// reports progress as the archiver emits it, line by line, with no
// buffering of the archiver's own output cadence.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hearthstack/mcfleet/pkg/errs"
	"github.com/hearthstack/mcfleet/pkg/execline"
	"github.com/hearthstack/mcfleet/pkg/log"
	"github.com/hearthstack/mcfleet/pkg/types"
)

// Result is what a successful archive creation yields as its final
// Progress.Result.
type Result struct {
	Filename string
	Size     int64
	Path     string
}

var unsafeChars = regexp.MustCompile(`[/\\:*?"<>| ]`)

// sanitize replaces filesystem-unsafe characters with underscores; an
// empty or all-dots result becomes "unknown" so a pathological input never
// produces an empty or dots-only path segment. A leading dot is kept.
func sanitize(s string) string {
	out := unsafeChars.ReplaceAllString(s, "_")
	if out == "" || strings.Trim(out, ".") == "" {
		return "unknown"
	}
	return out
}

// archiveFilename builds "<safe(server)>_<safe(path)>_<timestamp>.7z".
func archiveFilename(serverID, path string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d.7z", sanitize(serverID), sanitize(path), now.Unix())
}

// nowFunc is overridable in tests; production always uses time.Now.
var nowFunc = time.Now

// percentLine matches 7z's progress output, e.g. " 45% 3 + data/world".
var percentLine = regexp.MustCompile(`(\d{1,3})%`)

// CreateStream returns a Generator that compresses sourcePath (resolved
// relative to dataDir, the server's data directory) into a .7z file written
// into outputDir. sourcePath must resolve inside dataDir; a path that
// escapes it fails with an InvalidInput error rather than silently
// archiving something outside the server's sandbox.
func CreateStream(dataDir, outputDir, serverID, sourcePath string) func(ctx context.Context, yield func(types.Progress)) (any, error) {
	return func(ctx context.Context, yield func(types.Progress)) (any, error) {
		logger := log.WithServerID(serverID)
		zero := 0
		yield(types.Progress{Progress: &zero, Message: "Starting…"})

		absSource := filepath.Join(dataDir, sourcePath)
		if rel, err := filepath.Rel(dataDir, absSource); err != nil || strings.HasPrefix(rel, "..") {
			return nil, errs.InvalidInputf("source path %q escapes server data directory", sourcePath)
		}
		if _, err := os.Stat(absSource); err != nil {
			return nil, errs.New(errs.NotFound, fmt.Sprintf("source path %q not found", sourcePath))
		}

		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
		filename := archiveFilename(serverID, sourcePath, nowFunc())
		outputPath := filepath.Join(outputDir, filename)

		args := []string{"a", "-bsp1", "-bb1", outputPath, absSource}
		lines, errc := execline.Stream(ctx, "7z", args, execline.Options{Delimiter: '\r', Dir: dataDir})

		var lastPct int
		for l := range lines {
			pct, ok := parsePercent(l.Text)
			if !ok {
				continue
			}
			if pct <= lastPct && pct != 100 {
				continue
			}
			lastPct = pct
			p := pct
			yield(types.Progress{Progress: &p, Message: l.Text})
		}

		if err := <-errc; err != nil {
			_ = os.Remove(outputPath)
			logger.Warn().Err(err).Str("source", sourcePath).Msg("archive creation failed")
			return nil, errs.Wrap(errs.Transient, "archive creation failed", err)
		}

		info, err := os.Stat(outputPath)
		if err != nil {
			return nil, fmt.Errorf("stat archive output: %w", err)
		}

		hundred := 100
		result := Result{Filename: filename, Size: info.Size(), Path: outputPath}
		yield(types.Progress{Progress: &hundred, Message: "Done", Result: result})
		return result, nil
	}
}

func parsePercent(line string) (int, bool) {
	m := percentLine.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}

// ExtractStream returns a Generator that extracts archivePath into
// destDir, reporting coarse progress (7z's extraction mode has no native
// percentage stream the way compression does, so this reports start/done
// rather than synthesizing intermediate numbers).
func ExtractStream(archivePath, destDir string) func(ctx context.Context, yield func(types.Progress)) (any, error) {
	return func(ctx context.Context, yield func(types.Progress)) (any, error) {
		zero := 0
		yield(types.Progress{Progress: &zero, Message: "Starting…"})

		if _, err := os.Stat(archivePath); err != nil {
			return nil, errs.New(errs.NotFound, fmt.Sprintf("archive %q not found", archivePath))
		}
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return nil, fmt.Errorf("create destination directory: %w", err)
		}

		args := []string{"x", "-y", fmt.Sprintf("-o%s", destDir), archivePath}
		lines, errc := execline.Stream(ctx, "7z", args, execline.Options{Delimiter: '\n'})
		for range lines {
			// drain; 7z extraction output is file-by-file, not percentage-based
		}
		if err := <-errc; err != nil {
			return nil, errs.Wrap(errs.Transient, "archive extraction failed", err)
		}

		hundred := 100
		yield(types.Progress{Progress: &hundred, Message: "Done"})
		return map[string]any{"path": destDir}, nil
	}
}
