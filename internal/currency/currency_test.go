package currency

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRateTable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	rt := NewRateTable()
	rt.Set("USD", "AUD", decimal.RequireFromString("1.5"))

	got, err := rt.Convert(ctx, 1000, "USD", "AUD", now)
	require.NoError(t, err)
	require.Equal(t, int64(1500), got)

	// Inverse direction falls back to 1/rate.
	got, err = rt.Convert(ctx, 1500, "AUD", "USD", now)
	require.NoError(t, err)
	require.Equal(t, int64(1000), got)

	// Same currency is the identity.
	got, err = rt.Convert(ctx, 42, "EUR", "EUR", now)
	require.NoError(t, err)
	require.Equal(t, int64(42), got)

	// Unknown pair surfaces a typed ConversionError.
	_, err = rt.Convert(ctx, 42, "EUR", "JPY", now)
	var cerr *ConversionError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "EUR", cerr.From)
}
