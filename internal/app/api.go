package app

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/joblist"
)

// jobSummary is the JSON view of a job.
type jobSummary struct {
	Name      string     `json:"name"`
	Section   string     `json:"section"`
	Status    job.Status `json:"status"`
	Platform  string     `json:"platform"`
	RemoteID  string     `json:"remote_id,omitempty"`
	Packed    bool       `json:"packed,omitempty"`
	FailCount int        `json:"fail_count"`
	Date      string     `json:"date,omitempty"`
	Member    string     `json:"member,omitempty"`
	Chunk     int        `json:"chunk,omitempty"`
	Split     int        `json:"split,omitempty"`
}

// jobDetail adds the job's neighbours to its summary.
type jobDetail struct {
	jobSummary
	Parents  []string `json:"parents"`
	Children []string `json:"children"`
}

func (a *App) summarize(j *job.Job) jobSummary {
	s := jobSummary{
		Name:      j.Name,
		Section:   j.Section,
		Status:    j.Status(),
		Platform:  j.PlatformName,
		RemoteID:  j.ID,
		Packed:    j.Packed,
		FailCount: j.FailCount,
		Member:    j.Member(),
		Chunk:     j.Chunk(),
		Split:     j.Split(),
	}
	if !j.Date().IsZero() {
		s.Date = coord.FormatDate(j.Date(), a.dateFormat)
	}
	return s
}

func names(jobs []*job.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Name)
	}
	return out
}

// listJobs handles GET /v1/jobs with optional status and platform filters.
func (a *App) listJobs(w http.ResponseWriter, r *http.Request) {
	if a.sched == nil {
		http.Error(w, "Job list not generated yet", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	platform := q.Get("platform")
	var status *job.Status
	if raw := q.Get("status"); raw != "" {
		s, err := job.ParseStatus(raw)
		if err != nil {
			http.Error(w, "Invalid status: "+err.Error(), http.StatusBadRequest)
			return
		}
		status = &s
	}

	out := make([]jobSummary, 0)
	a.sched.View(func(l *joblist.JobList) {
		for _, j := range l.Jobs() {
			if platform != "" && j.PlatformName != platform {
				continue
			}
			if status != nil && j.Status() != *status {
				continue
			}
			out = append(out, a.summarize(j))
		}
	})
	writeJSON(w, http.StatusOK, out)
}

// getJob handles GET /v1/jobs/{name}.
func (a *App) getJob(w http.ResponseWriter, r *http.Request) {
	if a.sched == nil {
		http.Error(w, "Job list not generated yet", http.StatusServiceUnavailable)
		return
	}
	name := mux.Vars(r)["name"]

	var (
		detail jobDetail
		found  bool
	)
	a.sched.View(func(l *joblist.JobList) {
		j, ok := l.JobByName(name)
		if !ok {
			return
		}
		found = true
		detail = jobDetail{
			jobSummary: a.summarize(j),
			Parents:    names(j.Parents()),
			Children:   names(j.Children()),
		}
	})
	if !found {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
