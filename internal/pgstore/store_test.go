package pgstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/chunkgrid/internal/snapshot"
	"github.com/vk/chunkgrid/internal/testutil"
)

func TestConformance(t *testing.T) {
	dsn := os.Getenv("CHUNKGRID_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set CHUNKGRID_POSTGRES_DSN to run Postgres integration tests")
	}

	testutil.RunStoreConformance(t, func(t *testing.T) snapshot.Store {
		expid := fmt.Sprintf("t%d", time.Now().UnixNano())
		s, err := Open(context.Background(), dsn, expid)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = s.db.Exec(`DELETE FROM job_snapshots WHERE expid = $1`, expid)
			_ = s.Close()
		})
		return s
	})
}
