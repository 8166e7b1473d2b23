package app

import (
	"fmt"
	"maps"
	"slices"

	"github.com/vk/chunkgrid/internal/config"
	"github.com/vk/chunkgrid/internal/scheduler"
	"github.com/vk/chunkgrid/internal/sshplatform"
)

// platformBuilder creates the implementation of one platform block.
type platformBuilder func(p *config.Platform, expid, templateDir string) (scheduler.Platform, error)

// platformTypes is the definitive list of batch systems compiled into the
// chunkgrid binary, keyed by the platform block's type. An empty type means
// slurm.
var platformTypes = map[string]platformBuilder{
	"":      newSlurmPlatform,
	"slurm": newSlurmPlatform,
}

func newSlurmPlatform(p *config.Platform, expid, templateDir string) (scheduler.Platform, error) {
	sp, err := sshplatform.New(sshplatform.Config{
		Name:         p.Name,
		Host:         p.Host,
		User:         p.User,
		Port:         p.Port,
		IdentityFile: p.IdentityFile,
		RemoteDir:    p.RemoteDir,
		Expid:        expid,
		TemplateDir:  templateDir,
	})
	if err != nil {
		return nil, err
	}
	return sp, nil
}

// buildPlatforms creates every declared platform.
func buildPlatforms(model *config.Model, templateDir string) (map[string]scheduler.Platform, error) {
	out := make(map[string]scheduler.Platform, len(model.Platforms))
	for _, name := range slices.Sorted(maps.Keys(model.Platforms)) {
		p := model.Platforms[name]
		build, ok := platformTypes[p.Type]
		if !ok {
			return nil, fmt.Errorf("platform %s: unsupported type %q", name, p.Type)
		}
		impl, err := build(p, model.Experiment.ID, templateDir)
		if err != nil {
			return nil, err
		}
		out[name] = impl
	}
	return out, nil
}
