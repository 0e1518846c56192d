// Package dbtest opens throwaway in-memory SQLite databases with the full
// migration set applied.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"entgo.io/ent/dialect"
	"github.com/google/uuid"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// Open returns a migrated client backed by a private in-memory database.
// The database is closed when the test finishes.
func Open(t testing.TB) *database.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)

	client := database.NewFromDB(db, dialect.SQLite)
	require.NoError(t, client.Migrate(context.Background(), logger.Nop()))

	t.Cleanup(func() {
		client.Close()
	})
	return client
}
