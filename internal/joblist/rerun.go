package joblist

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/vk/chunkgrid/internal/dependency"
	"github.com/vk/chunkgrid/internal/job"
	"gopkg.in/yaml.v3"
)

// Selection lists the (date, member, chunk) triples to rerun.
//
//	sds:
//	  - sd: "20000101"
//	    ms:
//	      - m: fc0
//	        cs: [2, 3]
type Selection struct {
	StartDates []SelectedDate `yaml:"sds" json:"sds"`
}

// SelectedDate is one start date of a Selection.
type SelectedDate struct {
	Date    string           `yaml:"sd" json:"sd"`
	Members []SelectedMember `yaml:"ms" json:"ms"`
}

// SelectedMember is one member of a SelectedDate.
type SelectedMember struct {
	Member string `yaml:"m" json:"m"`
	Chunks []int  `yaml:"cs" json:"cs"`
}

// LoadSelection reads a Selection from a YAML or JSON file.
func LoadSelection(path string) (Selection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Selection{}, fmt.Errorf("reading rerun selection: %w", err)
	}
	return ParseSelection(data)
}

// ParseSelection decodes a YAML or JSON selection.
func ParseSelection(data []byte) (Selection, error) {
	var sel Selection
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return Selection{}, fmt.Errorf("decoding rerun selection: %w", err)
	}
	for _, sd := range sel.StartDates {
		if _, err := coord.ParseDate(sd.Date); err != nil {
			return Selection{}, fmt.Errorf("rerun selection: %w", err)
		}
	}
	return sel, nil
}

// Rerun restricts a generated collection to the selected chunks.
//
// Every job starts COMPLETED. Jobs at a selected coordinate become WAITING,
// except rerun-only jobs whose chunk directly follows the previous selected
// chunk of the same member. The parents named by the section's rerun
// dependencies become WAITING as well. COMPLETED jobs are then removed
// unless synchronized, the genealogy is recomputed, and synchronized jobs
// still COMPLETED are reset to WAITING.
func (l *JobList) Rerun(ctx context.Context, sel Selection) error {
	logger := ctxlog.FromContext(ctx)

	rerunDeps := make(map[string][]dependency.Dependency)
	for _, s := range l.model.Sections {
		if len(s.RerunDependencies) == 0 {
			continue
		}
		deps, err := l.parseKeys(ctx, s.Name, s.RerunDependencies)
		if err != nil {
			return err
		}
		rerunDeps[s.Name] = deps
	}

	jobs := l.arena.Jobs()
	for _, j := range jobs {
		j.SetStatus(job.Completed)
	}

	axes := l.dict.Axes()
	for _, sd := range sel.StartDates {
		date, err := coord.ParseDate(sd.Date)
		if err != nil {
			return fmt.Errorf("rerun selection: %w", err)
		}
		for _, m := range sd.Members {
			previous := 0
			for _, chunk := range m.Chunks {
				at := coord.Coordinate{Date: date, Member: m.Member, Chunk: chunk}
				for _, j := range jobs {
					if !j.Date().Equal(date) || j.Member() != m.Member || j.Chunk() != chunk {
						continue
					}
					if !j.RerunOnly || chunk != previous+1 {
						j.SetStatus(job.Waiting)
						logger.Debug("Selected for rerun.", "job", j.Name)
					}
					for _, d := range rerunDeps[j.Section] {
						target, ok := dependency.Resolve(axes, at, d)
						if !ok {
							continue
						}
						for _, p := range l.dict.Lookup(d.Section, target) {
							p.SetStatus(job.Waiting)
							logger.Debug("Rerun dependency selected.", "job", p.Name, "child", j.Name)
						}
					}
				}
				previous = chunk
			}
		}
	}

	for _, j := range l.arena.Jobs() {
		if j.Status() == job.Completed && j.Synchronize == coord.SyncNone {
			if err := l.remove(j); err != nil {
				return err
			}
		}
	}
	if err := l.updateGenealogy(ctx); err != nil {
		return err
	}
	for _, j := range l.arena.Jobs() {
		if j.Synchronize != coord.SyncNone && j.Status() == job.Completed {
			j.SetStatus(job.Waiting)
		}
	}

	logger.Info("Job list restricted to rerun selection.", "jobs", l.Len())
	return nil
}

// RemoveRerunOnlyJobs drops the jobs that only exist for reruns and
// recomputes the genealogy when any was removed.
func (l *JobList) RemoveRerunOnlyJobs(ctx context.Context) error {
	removed := false
	for _, j := range l.arena.Jobs() {
		if j.RerunOnly {
			if err := l.remove(j); err != nil {
				return err
			}
			removed = true
		}
	}
	if !removed {
		return nil
	}
	return l.updateGenealogy(ctx)
}
