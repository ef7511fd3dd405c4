package service

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jask/bankfeed/internal/identity"
	"github.com/jask/bankfeed/internal/transform"
)

func canonicalRow(t *testing.T, title string) transform.CanonicalRow {
	t.Helper()
	key, err := identity.DeriveID(map[string]string{"t": title}, []string{"t"})
	require.NoError(t, err)
	return transform.CanonicalRow{
		Key:              key,
		Date:             time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Title:            title,
		Type:             transform.TypeDebit,
		SpendingAmount:   1099,
		SpendingCurrency: "NZD",
		AccountAmount:    1099,
		AccountCurrency:  "NZD",
	}
}

func TestCreateMany_ConversionFailureKeepsRow(t *testing.T) {
	t.Parallel()
	e := setupImportTest(t)

	// No NZD rate configured: the row must still be created, in native
	// currency only.
	f := e.writeUpload(t, "kiwi.csv", "unused")
	svc := e.svc.Creator
	res, err := svc.CreateMany(e.ctx, []transform.CanonicalRow{canonicalRow(t, "KIWI SHOP")},
		f.ID, e.acctID, testUser)
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	require.Equal(t, 1, res.ConversionErrors)

	txs, err := e.txRepo.ListByFile(e.ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Nil(t, txs[0].HomeAmount)
	require.Nil(t, txs[0].HomeCurrency)
	require.Equal(t, int64(1099), txs[0].AccountAmount)
}

func TestCreateMany_DuplicateKeyAcrossFiles(t *testing.T) {
	t.Parallel()
	e := setupImportTest(t)

	svc := e.svc.Creator
	row := canonicalRow(t, "SAME ROW TWICE")
	fa := e.writeUpload(t, "a.csv", "unused")
	fb := e.writeUpload(t, "b.csv", "unused")

	res, err := svc.CreateMany(e.ctx, []transform.CanonicalRow{row}, fa.ID, e.acctID, testUser)
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)

	// Same content key arriving via another file is skipped, not an error.
	res, err = svc.CreateMany(e.ctx, []transform.CanonicalRow{row}, fb.ID, e.acctID, testUser)
	require.NoError(t, err)
	require.Zero(t, res.Created)
	require.Equal(t, 1, res.SkippedDuplicates)

	n, err := e.txRepo.CountByUser(e.ctx, testUser)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestCreateMany_NilConverterSkipsConversion(t *testing.T) {
	t.Parallel()
	e := setupImportTest(t)

	f := e.writeUpload(t, "c.csv", "unused")
	svc := &TransactionService{Transactions: e.txRepo, HomeCurrency: "EUR", Log: zerolog.Nop()}
	res, err := svc.CreateMany(e.ctx, []transform.CanonicalRow{canonicalRow(t, "NO CONVERTER")},
		f.ID, e.acctID, testUser)
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	require.Zero(t, res.ConversionErrors)

	txs, err := e.txRepo.ListByFile(e.ctx, f.ID)
	require.NoError(t, err)
	require.Nil(t, txs[0].HomeCurrency)
}
