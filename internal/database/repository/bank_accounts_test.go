package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/bankfeed/internal/database"
)

func setupRepoTest(t *testing.T) (context.Context, *BankAccountRepo) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations, err := filepath.Abs("../migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrationsWithDB(db, migrations))

	return ctx, NewBankAccountRepo(db)
}

func TestBankAccountRoundTrip(t *testing.T) {
	t.Parallel()
	ctx, repo := setupRepoTest(t)

	acct := BankAccount{
		ID:     "acct-1",
		UserID: "user-1",
		Name:   "Checking",
		Config: TransformConfig{
			Delimiter: ";",
			HasHeader: true,
			IDColumns: []string{"Booking Date", "Details", "Amount"},
			IDField:   "tx_key",
			Query:     "SELECT tx_key FROM source",
		},
	}
	require.NoError(t, repo.Upsert(ctx, acct))

	got, err := repo.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, acct.Name, got.Name)
	require.Equal(t, acct.Config.IDColumns, got.Config.IDColumns)
	require.Equal(t, acct.Config.Query, got.Config.Query)

	// Upsert with the same id replaces the configuration.
	acct.Config.Query = "SELECT tx_key, 'x' FROM source"
	require.NoError(t, repo.Upsert(ctx, acct))
	got, err = repo.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, acct.Config.Query, got.Config.Query)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestTransformConfigValidate(t *testing.T) {
	t.Parallel()

	valid := TransformConfig{
		Delimiter: ",",
		IDColumns: []string{"a"},
		Query:     "SELECT 1",
	}
	require.NoError(t, valid.Validate())

	noCols := valid
	noCols.IDColumns = nil
	require.Error(t, noCols.Validate())

	blankCol := valid
	blankCol.IDColumns = []string{"a", "  "}
	require.Error(t, blankCol.Validate())

	noQuery := valid
	noQuery.Query = "  "
	require.Error(t, noQuery.Validate())

	longDelim := valid
	longDelim.Delimiter = ";;"
	require.Error(t, longDelim.Validate())

	require.Equal(t, ',', TransformConfig{}.DelimiterRune())
	require.Equal(t, ';', TransformConfig{Delimiter: ";"}.DelimiterRune())
}
