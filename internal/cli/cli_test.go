package cli_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/chunkgrid/internal/app"
	"github.com/vk/chunkgrid/internal/cli"
)

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		args           []string
		expectExit     bool
		expectErr      string
		expectedConfig *app.Config
	}{
		{
			name: "Happy path with all flags",
			args: []string{
				"--log-level=debug",
				"--log-format=text",
				"--healthcheck-port=8080",
				"-store", "postgres",
				"-store-dsn", "postgres://localhost/chunkgrid",
				"-events-url", "http://localhost:3000",
				"-events-namespace", "/exp",
				"-rerun", "rerun.yaml",
				"-new",
				"-once",
				"/exp/a000",
			},
			expectedConfig: &app.Config{
				ConfigPath:      "/exp/a000",
				LogLevel:        "debug",
				LogFormat:       "text",
				HealthcheckPort: 8080,
				Store:           app.StorePostgres,
				StoreDSN:        "postgres://localhost/chunkgrid",
				EventsURL:       "http://localhost:3000",
				EventsNamespace: "/exp",
				RerunPath:       "rerun.yaml",
				New:             true,
				Once:            true,
			},
		},
		{
			name: "Defaults",
			args: []string{"/exp/a000"},
			expectedConfig: &app.Config{
				ConfigPath:      "/exp/a000",
				LogLevel:        "info",
				LogFormat:       "json",
				Store:           app.StoreFile,
				EventsNamespace: "/",
			},
		},
		{
			name:       "Help flag triggers clean exit",
			args:       []string{"-h"},
			expectExit: true,
		},
		{
			name:       "No path triggers clean exit with usage",
			args:       []string{},
			expectExit: true,
		},
		{name: "Invalid log level", args: []string{"--log-level=foo", "/path"}, expectErr: "invalid log-level"},
		{name: "Invalid log format", args: []string{"--log-format=yaml", "/path"}, expectErr: "invalid log-format"},
		{name: "Two paths", args: []string{"/a", "/b"}, expectErr: "single CONFIG_PATH"},
		{name: "Unknown store", args: []string{"-store", "redis", "/path"}, expectErr: "unknown store"},
		{name: "Etcd without endpoints", args: []string{"-store", "etcd", "/path"}, expectErr: "needs a DSN"},
		{name: "Undefined flag", args: []string{"-workers", "3", "/path"}, expectErr: "flag provided but not defined"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := &bytes.Buffer{}
			appConfig, shouldExit, err := cli.Parse(tc.args, out)

			if tc.expectErr != "" {
				var exitErr *cli.ExitError
				require.True(t, errors.As(err, &exitErr), "Expected error to be of type ExitError")
				assert.Equal(t, 2, exitErr.Code)
				assert.Contains(t, exitErr.Message, tc.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectExit, shouldExit)
			if tc.expectExit {
				assert.Contains(t, out.String(), "Usage:")
				return
			}
			if diff := cmp.Diff(tc.expectedConfig, appConfig); diff != "" {
				t.Errorf("Parse() config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
