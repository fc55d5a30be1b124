package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/mxwsort/internal/monitoring"
)

const rawSuffix = ".h5"

// ProcessTree walks root recursively, processing every *.h5 file in sorted
// path order. Each file's output root mirrors its directory relative to
// root.
func (r *Runner) ProcessTree(ctx context.Context, root, outRoot string, cfg Config, opts Options) error {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), rawSuffix) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	if len(files) == 0 {
		monitoring.Logf("No %s files found under %s", rawSuffix, root)
		return nil
	}
	monitoring.Logf("Found %d %s file(s) under %s", len(files), rawSuffix, root)

	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			return err
		}
		fileOut := filepath.Join(outRoot, filepath.Dir(rel))
		if err := r.ProcessFile(ctx, f, fileOut, cfg, opts); err != nil {
			return err
		}
	}
	return nil
}

// ProcessFlat processes the *.h5 files directly inside root, in sorted name
// order, without recursing. Each file's output root is a subdirectory named
// after the file's stem.
func (r *Runner) ProcessFlat(ctx context.Context, root, outRoot string, cfg Config, opts Options) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), rawSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		monitoring.Logf("No %s files found under %s", rawSuffix, root)
		return nil
	}
	monitoring.Logf("Found %d %s file(s) under %s", len(names), rawSuffix, root)

	for _, name := range names {
		stem := strings.TrimSuffix(name, rawSuffix)
		fileOut := filepath.Join(outRoot, stem)
		if err := r.ProcessFile(ctx, filepath.Join(root, name), fileOut, cfg, opts); err != nil {
			return err
		}
	}
	return nil
}
