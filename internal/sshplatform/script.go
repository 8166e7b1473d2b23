package sshplatform

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/wrapper"
)

const heredocMarker = "CHUNKGRID_EOF"

type directives struct {
	name      string
	logDir    string
	tasks     int
	threads   int
	wallclock time.Duration
	queue     string
	memory    string
}

func (d directives) write(b *strings.Builder) {
	fmt.Fprintf(b, "#SBATCH --job-name=%s\n", d.name)
	fmt.Fprintf(b, "#SBATCH --output=%s\n", path.Join(d.logDir, d.name+".cmd.out"))
	fmt.Fprintf(b, "#SBATCH --error=%s\n", path.Join(d.logDir, d.name+".cmd.err"))
	if d.tasks > 0 {
		fmt.Fprintf(b, "#SBATCH --ntasks=%d\n", d.tasks)
	}
	if d.threads > 0 {
		fmt.Fprintf(b, "#SBATCH --cpus-per-task=%d\n", d.threads)
	}
	if d.wallclock > 0 {
		fmt.Fprintf(b, "#SBATCH --time=%s:00\n", formatWallclock(d.wallclock))
	}
	if d.queue != "" {
		fmt.Fprintf(b, "#SBATCH --qos=%s\n", d.queue)
	}
	if d.memory != "" {
		fmt.Fprintf(b, "#SBATCH --mem=%s\n", d.memory)
	}
}

func formatWallclock(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// renderJob builds the script of one job. The script records its start
// and end times in NAME_STAT and touches NAME_COMPLETED only when the
// template body succeeded. Standalone scripts carry sbatch directives;
// scripts run from inside a wrapper do not.
func renderJob(cfg Config, logDir string, j *job.Job, standalone bool) (string, error) {
	var body string
	if j.File != "" {
		data, err := os.ReadFile(filepath.Join(cfg.TemplateDir, j.File))
		if err != nil {
			return "", fmt.Errorf("reading template: %w", err)
		}
		body = substitute(string(data), variables(cfg.Expid, j))
	}

	stat := path.Join(logDir, j.Name+"_STAT")
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	if standalone {
		directives{
			name:      j.Name,
			logDir:    logDir,
			tasks:     j.Processors,
			threads:   j.Threads,
			wallclock: j.Wallclock,
			queue:     j.Queue,
			memory:    j.Memory,
		}.write(&b)
	}
	fmt.Fprintf(&b, "\necho $(date +%%s) > %s\n", stat)
	fmt.Fprintf(&b, "trap 'echo $(date +%%s) >> %s' EXIT\n", stat)
	b.WriteString("set -xuve\n\n")

	switch j.Type {
	case job.Python:
		fmt.Fprintf(&b, "python3 - <<'%s'\n%s\n%s\n", heredocMarker, strings.TrimRight(body, "\n"), heredocMarker)
	case job.R:
		fmt.Fprintf(&b, "Rscript - <<'%s'\n%s\n%s\n", heredocMarker, strings.TrimRight(body, "\n"), heredocMarker)
	default:
		b.WriteString(strings.TrimRight(body, "\n"))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\ntouch %s\n", path.Join(logDir, j.Name+"_COMPLETED"))
	return b.String(), nil
}

// renderWrapper builds the batch script of a package: chains run side by
// side and the jobs of a chain run one after another, stopping at the
// first one that leaves no completion marker.
func renderWrapper(logDir string, pkg wrapper.Package) string {
	first := pkg.Chains[0][0]
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	directives{
		name:      pkg.Name,
		logDir:    logDir,
		tasks:     pkg.Processors(),
		wallclock: pkg.Wallclock(),
		queue:     first.Queue,
	}.write(&b)
	fmt.Fprintf(&b, "\ncd %s\n\n", logDir)

	var names []string
	for _, chain := range pkg.Chains {
		b.WriteString("(\n")
		for _, j := range chain {
			fmt.Fprintf(&b, "  bash %[1]s.cmd > %[1]s.cmd.out 2> %[1]s.cmd.err\n", j.Name)
			fmt.Fprintf(&b, "  [ -f %s_COMPLETED ] || exit 1\n", j.Name)
			names = append(names, j.Name)
		}
		b.WriteString(") &\n")
	}
	b.WriteString("wait\n\n")
	fmt.Fprintf(&b, "for job in %s; do\n  [ -f ${job}_COMPLETED ] || exit 1\ndone\n", strings.Join(names, " "))
	return b.String()
}

// variables returns the placeholder values of a job's template.
func variables(expid string, j *job.Job) map[string]string {
	vars := make(map[string]string, len(j.Parameters)+12)
	for k, v := range j.Parameters {
		vars[k] = v
	}
	vars["JOBNAME"] = j.Name
	vars["EXPID"] = expid
	vars["SECTION"] = j.Section
	vars["NUMPROC"] = strconv.Itoa(j.Processors)
	vars["NUMTHREADS"] = strconv.Itoa(j.Threads)
	vars["NUMTASK"] = strconv.Itoa(j.Tasks)
	vars["WALLCLOCK"] = formatWallclock(j.Wallclock)
	vars["CURRENT_QUEUE"] = j.Queue
	vars["FAIL_COUNT"] = strconv.Itoa(j.FailCount)
	if j.Coordinate().HasDate() {
		vars["SDATE"] = coord.FormatDate(j.Date(), "")
	}
	if j.Coordinate().HasMember() {
		vars["MEMBER"] = j.Member()
	}
	if j.Coordinate().HasChunk() {
		vars["CHUNK"] = strconv.Itoa(j.Chunk())
	}
	if j.Coordinate().HasSplit() {
		vars["SPLIT"] = strconv.Itoa(j.Split())
	}
	return vars
}

// substitute replaces %KEY% placeholders. Unknown placeholders are left as
// they are.
func substitute(text string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "%"+k+"%", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
