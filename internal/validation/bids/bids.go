// Package bids is the built-in validator plugin for BIDS-organised mounts.
//
// Datasets are subject directories (sub-<label>) at the mount root or below
// sourcedata, rawdata and derivatives, plus the files of the phenotype
// layout. The baseline of a collected mount is the set of subject labels it
// already holds.
package bids

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"caravel/internal/layout"
	"caravel/internal/validation"
)

const subjectPrefix = "sub-"

// subjectLayouts hold subject directories; phenotype holds tables.
var subjectLayouts = []string{layout.LayoutSourcedata, layout.LayoutRawdata, layout.LayoutDerivatives}

// Capabilities returns the hook set of the plugin.
func Capabilities() validation.Capabilities {
	return validation.Capabilities{
		Status:       Status,
		Validators:   Validators,
		ListDatasets: ListDatasets,
	}
}

// Register installs the plugin under every family name.
func Register(registry *validation.Registry, families ...string) error {
	for _, family := range families {
		if err := registry.Register(family, Capabilities()); err != nil {
			return err
		}
	}
	return nil
}

// ListDatasets returns the slash-separated relative paths of the datasets
// found below root, sorted.
func ListDatasets(ctx context.Context, root string) ([]string, error) {
	var out []string
	subjects, err := subjectDirs(root, "")
	if err != nil {
		return nil, err
	}
	out = append(out, subjects...)
	for _, name := range subjectLayouts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := subjectDirs(filepath.Join(root, name), name)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	phenotype, err := os.ReadDir(filepath.Join(root, layout.LayoutPhenotype))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list phenotype: %w", err)
	}
	for _, entry := range phenotype {
		if entry.Type().IsRegular() && !strings.HasPrefix(entry.Name(), ".") {
			out = append(out, path.Join(layout.LayoutPhenotype, entry.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func subjectDirs(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), subjectPrefix) && len(entry.Name()) > len(subjectPrefix) {
			out = append(out, path.Join(prefix, entry.Name()))
		}
	}
	return out, nil
}

// Status returns the subject labels already present in collectDir.
func Status(ctx context.Context, collectDir string) (validation.Baseline, error) {
	info, err := os.Stat(collectDir)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("status: %s is not a directory", collectDir)
	}
	datasets, err := ListDatasets(ctx, collectDir)
	if err != nil {
		return nil, err
	}
	baseline := validation.Baseline{}
	for _, dataset := range datasets {
		if label, ok := strings.CutPrefix(path.Base(dataset), subjectPrefix); ok {
			baseline[label] = struct{}{}
		}
	}
	return baseline, nil
}

// Validators returns the structural validators, plus the content validators
// unless selector is SelectStructural.
func Validators(selector validation.Selector) []validation.Validator {
	structural := []validation.Validator{
		{Name: "naming", Check: checkNaming},
		{Name: "layout", Check: checkLayout},
	}
	if selector == validation.SelectStructural {
		return structural
	}
	return append(structural,
		validation.Validator{Name: "sidecar", Check: checkSidecars},
		validation.Validator{Name: "subjects", Check: checkSubjects},
		validation.Validator{Name: "phenotype", Check: checkPhenotype},
	)
}
