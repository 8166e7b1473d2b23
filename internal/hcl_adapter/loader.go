package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/chunkgrid/internal/config"
	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load parses every .hcl file under paths, merges their blocks into one
// model and validates it. Blocks may be spread over any number of files, but
// only one experiment and one wrapper block may exist in total.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := &config.Model{Platforms: make(map[string]*config.Platform)}

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("%w: no .hcl files found in %v", config.ErrInvalid, paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, e := range root.Experiments {
			if model.Experiment != nil {
				return nil, fmt.Errorf("%w: experiment %q declared in %s, but %q was already declared", config.ErrInvalid, e.ID, file, model.Experiment.ID)
			}
			exp, err := translateExperiment(e)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			model.Experiment = exp
		}
		for _, w := range root.Wrappers {
			if model.Wrapper != nil {
				return nil, fmt.Errorf("%w: more than one wrapper block (second in %s)", config.ErrInvalid, file)
			}
			wrapper, err := translateWrapper(w)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			model.Wrapper = wrapper
		}
		for _, p := range root.Platforms {
			if _, dup := model.Platforms[p.Name]; dup {
				return nil, fmt.Errorf("%w: platform %q declared twice", config.ErrInvalid, p.Name)
			}
			plat, err := translatePlatform(p)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			model.Platforms[plat.Name] = plat
		}
		for _, j := range root.Jobs {
			s, err := translateSection(ctx, j)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			model.Sections = append(model.Sections, s)
		}
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "sections", len(model.Sections), "platforms", len(model.Platforms), "wrapped", model.Wrapper != nil)
	return model, nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // It's not an error if a configured path doesn't exist.
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() && filepath.Ext(path) != ".hcl" {
			continue
		}
		files, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("error walking path %s: %w", path, err)
		}
		for _, f := range files {
			add(f)
		}
	}
	return allFiles, nil
}
