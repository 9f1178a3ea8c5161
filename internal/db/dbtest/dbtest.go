// Package dbtest opens throwaway databases for tests.
package dbtest

import (
	"io"
	"path/filepath"
	"testing"

	"spadesk/internal/db"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Open creates a fresh sqlite file under t.TempDir and closes it on cleanup.
func Open(t *testing.T) *db.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	d, err := db.NewDB(filepath.Join(t.TempDir(), "spadesk.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}
