package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/chunkgrid/internal/config"
	"github.com/vk/chunkgrid/internal/coord"
	"github.com/vk/chunkgrid/internal/events"
	"github.com/vk/chunkgrid/internal/filestore"
	"github.com/vk/chunkgrid/internal/job"
	"github.com/vk/chunkgrid/internal/joblist"
	"github.com/vk/chunkgrid/internal/memstore"
	"github.com/vk/chunkgrid/internal/remote"
	"github.com/vk/chunkgrid/internal/scheduler"
	"github.com/vk/chunkgrid/internal/testutil"
)

const (
	iniName  = "a000_20000101_fc0_INI"
	sim1Name = "a000_20000101_fc0_1_SIM"
	sim2Name = "a000_20000101_fc0_2_SIM"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type loaderFunc func(ctx context.Context, paths ...string) (*config.Model, error)

func (f loaderFunc) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	return f(ctx, paths...)
}

func testModel() *config.Model {
	return &config.Model{
		Experiment: &config.Experiment{
			ID:              "a000",
			StartDates:      []time.Time{time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
			Members:         []string{"fc0"},
			NumChunks:       2,
			ChunkIni:        1,
			Retrials:        1,
			DefaultPlatform: "hpc",
		},
		Platforms: map[string]*config.Platform{"hpc": {Name: "hpc", Type: "slurm"}},
		Sections: []*config.Section{
			{Name: "INI", File: "ini.sh", Running: coord.RunMember, Frequency: 1, Delay: -1},
			{
				Name: "SIM", File: "sim.sh", Running: coord.RunChunk, Frequency: 1, Delay: -1,
				Dependencies: []string{"INI", "SIM-1"}, RerunDependencies: []string{"INI"},
			},
		},
	}
}

func staticLoader(m *config.Model) config.Loader {
	return loaderFunc(func(context.Context, ...string) (*config.Model, error) { return m, nil })
}

// setupApp creates an app over testModel with a fake platform and the given
// store. Set CHUNKGRID_TEST_LOGS=true to print the captured log.
func setupApp(t *testing.T, cfg Config, store *memstore.Store) (*App, *testutil.FakePlatform, *testutil.SafeBuffer) {
	t.Helper()
	cfg.ConfigPath = "experiment.hcl"
	cfg.LogLevel = "debug"
	appConfig, err := NewConfig(cfg)
	require.NoError(t, err)

	buf := &testutil.SafeBuffer{}
	p := testutil.NewFakePlatform("hpc")
	a, err := NewApp(context.Background(), buf, appConfig, staticLoader(testModel()),
		WithPlatforms(map[string]scheduler.Platform{"hpc": p}),
		WithStore(store),
		WithClock(func() time.Time { return t0 }),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("CHUNKGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return a, p, buf
}

func packageNames(p *testutil.FakePlatform) []string {
	var out []string
	for _, pkg := range p.Submissions() {
		out = append(out, pkg.Name)
	}
	return out
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(Config{ConfigPath: "exp"})
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)

	tests := []struct {
		name string
		cfg  Config
		msg  string
	}{
		{"missing path", Config{}, "ConfigPath is a required"},
		{"postgres without dsn", Config{ConfigPath: "exp", Store: StorePostgres}, "needs a DSN"},
		{"etcd without dsn", Config{ConfigPath: "exp", Store: StoreEtcd}, "needs a DSN"},
		{"unknown store", Config{ConfigPath: "exp", Store: "redis"}, "unknown store"},
		{"negative port", Config{ConfigPath: "exp", HealthcheckPort: -1}, "cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.cfg)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf strings.Builder
	newLogger("debug", "json", &buf).Debug("hello")
	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	logger := newLogger("warn", "text", &buf)
	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")

	buf.Reset()
	logger = newLogger("loud", "text", &buf)
	logger.Debug("dropped")
	logger.Info("kept")
	assert.Equal(t, 1, strings.Count(buf.String(), "msg="))
}

func TestNewAppLoadError(t *testing.T) {
	cfg, err := NewConfig(Config{ConfigPath: "missing.hcl"})
	require.NoError(t, err)
	loader := loaderFunc(func(context.Context, ...string) (*config.Model, error) {
		return nil, errors.New("failed to parse")
	})

	_, err = NewApp(context.Background(), &testutil.SafeBuffer{}, cfg, loader)
	assert.ErrorContains(t, err, "failed to load configuration: failed to parse")
}

func TestNewAppBuildsDependencies(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewConfig(Config{
		ConfigPath:      dir,
		Store:           StoreFile,
		StoreDSN:        filepath.Join(dir, "jobs.yaml"),
		EventsURL:       "http://localhost:3000",
		EventsNamespace: "/experiments",
	})
	require.NoError(t, err)

	a, err := NewApp(context.Background(), &testutil.SafeBuffer{}, cfg, staticLoader(testModel()),
		WithPlatforms(map[string]scheduler.Platform{"hpc": testutil.NewFakePlatform("hpc")}))
	require.NoError(t, err)
	assert.IsType(t, &filestore.Store{}, a.store)
	require.IsType(t, events.Multi{}, a.publisher)
	assert.Len(t, a.publisher.(events.Multi), 2)
	assert.Equal(t, "a000", a.Model().Experiment.ID)
}

func TestNewAppPlatformErrors(t *testing.T) {
	cfg, err := NewConfig(Config{ConfigPath: t.TempDir()})
	require.NoError(t, err)

	m := testModel()
	m.Platforms["hpc"].Type = "pbs"
	_, err = NewApp(context.Background(), &testutil.SafeBuffer{}, cfg, staticLoader(m))
	assert.ErrorContains(t, err, `unsupported type "pbs"`)

	m = testModel()
	m.Platforms["hpc"].IdentityFile = filepath.Join(t.TempDir(), "id_missing")
	_, err = NewApp(context.Background(), &testutil.SafeBuffer{}, cfg, staticLoader(m))
	assert.ErrorIs(t, err, remote.ErrFatal)
}

func TestNewAppRejectsBadEventsURL(t *testing.T) {
	cfg, err := NewConfig(Config{ConfigPath: "exp", EventsURL: "localhost"})
	require.NoError(t, err)
	_, err = NewApp(context.Background(), &testutil.SafeBuffer{}, cfg, staticLoader(testModel()),
		WithPlatforms(map[string]scheduler.Platform{}))
	assert.ErrorContains(t, err, "configuring event publisher")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	s, err := openStore(ctx, &Config{Store: StoreMemory}, "a000")
	require.NoError(t, err)
	assert.IsType(t, &memstore.Store{}, s)

	s, err = openStore(ctx, &Config{Store: StoreFile}, "a000")
	require.NoError(t, err)
	assert.IsType(t, &filestore.Store{}, s)

	_, err = openStore(ctx, &Config{Store: "redis"}, "a000")
	assert.ErrorContains(t, err, "unknown store")
}

func TestSplitEndpoints(t *testing.T) {
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, splitEndpoints(" 10.0.0.1:2379, ,10.0.0.2:2379 "))
	assert.Nil(t, splitEndpoints(""))
}

func TestRunOnce(t *testing.T) {
	store := memstore.New()
	a, p, buf := setupApp(t, Config{Once: true}, store)

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, []string{iniName}, packageNames(p))
	assert.Equal(t, 1, store.Saves())

	records, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, iniName, records[0].Name)
	assert.Equal(t, job.Submitted, records[0].Status)
	assert.Contains(t, buf.String(), "Job status changed.")
	assert.Contains(t, buf.String(), "Single tick finished.")
}

func TestRunRestoresSnapshot(t *testing.T) {
	store := memstore.New()
	first, p1, _ := setupApp(t, Config{Once: true}, store)
	require.NoError(t, first.Run(context.Background()))
	require.Len(t, p1.Submissions(), 1)

	// The restored INI is still in the queue under id 1: nothing to submit.
	second, p2, _ := setupApp(t, Config{Once: true}, store)
	require.NoError(t, second.Run(context.Background()))
	assert.Empty(t, p2.Submissions())

	// A fresh generation ignores the snapshot.
	third, p3, _ := setupApp(t, Config{Once: true, New: true}, store)
	require.NoError(t, third.Run(context.Background()))
	assert.Equal(t, []string{iniName}, packageNames(p3))
}

func TestRunRerun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rerun.yaml")
	sel := "sds:\n  - sd: \"20000101\"\n    ms:\n      - m: fc0\n        cs: [2]\n"
	require.NoError(t, os.WriteFile(path, []byte(sel), 0o644))

	a, p, _ := setupApp(t, Config{Once: true, RerunPath: path}, memstore.New())
	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, []string{iniName}, packageNames(p))

	var got []string
	a.sched.View(func(l *joblist.JobList) { got = names(l.Jobs()) })
	assert.Equal(t, []string{iniName, sim2Name}, got)
}

func TestRunRerunMissingSelection(t *testing.T) {
	a, _, _ := setupApp(t, Config{Once: true, RerunPath: filepath.Join(t.TempDir(), "nope.yaml")}, memstore.New())
	assert.ErrorContains(t, a.Run(context.Background()), "reading rerun selection")
}

func TestRunRejectsUnconfiguredPlatform(t *testing.T) {
	cfg, err := NewConfig(Config{ConfigPath: "exp", Once: true})
	require.NoError(t, err)
	a, err := NewApp(context.Background(), &testutil.SafeBuffer{}, cfg, staticLoader(testModel()),
		WithPlatforms(map[string]scheduler.Platform{"other": testutil.NewFakePlatform("other")}),
		WithStore(memstore.New()))
	require.NoError(t, err)
	assert.ErrorContains(t, a.Run(context.Background()), "which is not configured")
}

func TestRunInterrupted(t *testing.T) {
	a, p, buf := setupApp(t, Config{}, memstore.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, a.Run(ctx))
	assert.Len(t, p.Submissions(), 1)
	assert.Contains(t, buf.String(), "Experiment interrupted.")
}

func serve(t *testing.T, a *App, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestRouter(t *testing.T) {
	a, _, _ := setupApp(t, Config{Once: true}, memstore.New())

	rec := serve(t, a, http.MethodGet, "/v1/jobs")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, a.Run(context.Background()))

	rec = serve(t, a, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, a, http.MethodPost, "/health").Code)

	rec = serve(t, a, http.MethodGet, "/v1/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var all []jobSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 3)
	assert.Equal(t, jobSummary{
		Name: iniName, Section: "INI", Status: job.Submitted, Platform: "hpc",
		RemoteID: "1", Date: "20000101", Member: "fc0",
	}, all[0])

	rec = serve(t, a, http.MethodGet, "/v1/jobs?status=waiting")
	var waiting []jobSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &waiting))
	assert.Equal(t, []string{sim1Name, sim2Name}, []string{waiting[0].Name, waiting[1].Name})

	rec = serve(t, a, http.MethodGet, "/v1/jobs?platform=other")
	assert.Equal(t, "[]\n", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, serve(t, a, http.MethodGet, "/v1/jobs?status=bogus").Code)

	rec = serve(t, a, http.MethodGet, "/v1/jobs/"+sim1Name)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail jobDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, sim1Name, detail.Name)
	assert.Equal(t, 1, detail.Chunk)
	assert.Equal(t, job.Waiting, detail.Status)
	assert.Equal(t, []string{iniName}, detail.Parents)
	assert.Equal(t, []string{sim2Name}, detail.Children)

	assert.Equal(t, http.StatusNotFound, serve(t, a, http.MethodGet, "/v1/jobs/nope").Code)
}

func TestTemplateDir(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, templateDir(dir))
	assert.Equal(t, dir, templateDir(filepath.Join(dir, "experiment.hcl")))
}
