package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Experiments []*ExperimentBlock `hcl:"experiment,block"`
	Wrappers    []*WrapperBlock    `hcl:"wrapper,block"`
	Platforms   []*PlatformBlock   `hcl:"platform,block"`
	Jobs        []*JobBlock        `hcl:"job,block"`
	Remain      hcl.Body           `hcl:",remain"`
}

// ExperimentBlock maps `experiment "<expid>" { ... }`.
type ExperimentBlock struct {
	ID              string   `hcl:"id,label"`
	StartDates      []string `hcl:"start_dates"`
	Members         []string `hcl:"members,optional"`
	NumChunks       int      `hcl:"num_chunks,optional"`
	ChunkIni        *int     `hcl:"chunk_ini,optional"`
	DateFormat      string   `hcl:"date_format,optional"`
	Retrials        int      `hcl:"retrials,optional"`
	DefaultJobType  string   `hcl:"default_job_type,optional"`
	DefaultPlatform string   `hcl:"default_platform,optional"`
	UpdateFile      string   `hcl:"update_file,optional"`
	SafetySleep     string   `hcl:"safety_sleep,optional"`
}

// WrapperBlock maps the optional `wrapper { ... }` block.
type WrapperBlock struct {
	Type       string   `hcl:"type"`
	Jobs       []string `hcl:"jobs"`
	MaxWrapped int      `hcl:"max_wrapped,optional"`
	CheckTime  string   `hcl:"check_time,optional"`
}

// PlatformBlock maps `platform "<name>" { ... }`.
type PlatformBlock struct {
	Name           string `hcl:"name,label"`
	Type           string `hcl:"type"`
	Host           string `hcl:"host,optional"`
	User           string `hcl:"user,optional"`
	Port           int    `hcl:"port,optional"`
	IdentityFile   string `hcl:"identity_file,optional"`
	RemoteDir      string `hcl:"remote_dir,optional"`
	MaxWaitingJobs int    `hcl:"max_waiting_jobs,optional"`
	TotalJobs      int    `hcl:"total_jobs,optional"`
	MaxProcessors  int    `hcl:"max_processors,optional"`
	MaxWallclock   string `hcl:"max_wallclock,optional"`
	AllowWrappers  bool   `hcl:"allow_wrappers,optional"`
}

// JobBlock maps `job "<SECTION>" { ... }`.
type JobBlock struct {
	Section           string           `hcl:"section,label"`
	File              string           `hcl:"file,optional"`
	Running           string           `hcl:"running,optional"`
	Frequency         *int             `hcl:"frequency,optional"`
	Wait              *bool            `hcl:"wait,optional"`
	Delay             *int             `hcl:"delay,optional"`
	Synchronize       string           `hcl:"synchronize,optional"`
	Splits            int              `hcl:"splits,optional"`
	RerunOnly         bool             `hcl:"rerun_only,optional"`
	Dependencies      []string         `hcl:"dependencies,optional"`
	RerunDependencies []string         `hcl:"rerun_dependencies,optional"`
	Platform          string           `hcl:"platform,optional"`
	Type              string           `hcl:"type,optional"`
	Processors        int              `hcl:"processors,optional"`
	Threads           int              `hcl:"threads,optional"`
	Tasks             int              `hcl:"tasks,optional"`
	Wallclock         string           `hcl:"wallclock,optional"`
	Memory            string           `hcl:"memory,optional"`
	Queue             string           `hcl:"queue,optional"`
	Retrials          *int             `hcl:"retrials,optional"`
	Priority          int              `hcl:"priority,optional"`
	Parameters        *ParametersBlock `hcl:"parameters,block"`
}

// ParametersBlock captures arbitrary key/value pairs passed to the job
// template.
type ParametersBlock struct {
	Body hcl.Body `hcl:",remain"`
}
