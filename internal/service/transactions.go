package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jask/bankfeed/internal/currency"
	"github.com/jask/bankfeed/internal/database/repository"
	"github.com/jask/bankfeed/internal/transform"
)

// TransactionService persists canonical rows with idempotent insert
// semantics: the content-derived key is the primary identity, and a key
// collision is a silent skip, never an error.
type TransactionService struct {
	Transactions *repository.TransactionRepo
	Converter    currency.Converter
	HomeCurrency string
	Log          zerolog.Logger
}

// CreateResult reports one batch insertion.
type CreateResult struct {
	Created           int
	SkippedDuplicates int
	ConversionErrors  int
}

// CreateMany inserts the rows produced for one file. Duplicate keys are
// skipped; a currency-conversion failure leaves the home-currency amount
// unset and never blocks the insert.
func (s *TransactionService) CreateMany(ctx context.Context, rows []transform.CanonicalRow, importFileID, bankAccountID, userID string) (CreateResult, error) {
	var res CreateResult
	for _, row := range rows {
		var homeAmount *int64
		var homeCurrency *string
		if s.Converter != nil && s.HomeCurrency != "" {
			amt, err := s.Converter.Convert(ctx, row.AccountAmount, row.AccountCurrency, s.HomeCurrency, row.Date)
			if err != nil {
				res.ConversionErrors++
				s.Log.Debug().Err(err).Str("key", row.Key.String()).Msg("currency conversion failed, row kept in native currency")
			} else {
				home := s.HomeCurrency
				homeAmount, homeCurrency = &amt, &home
			}
		}

		inserted, err := s.Transactions.Insert(ctx, repository.Transaction{
			ID:               row.Key.String(),
			UserID:           userID,
			BankAccountID:    bankAccountID,
			ImportFileID:     importFileID,
			Date:             row.Date,
			Title:            row.Title,
			Type:             row.Type,
			SpendingAmount:   row.SpendingAmount,
			SpendingCurrency: row.SpendingCurrency,
			AccountAmount:    row.AccountAmount,
			AccountCurrency:  row.AccountCurrency,
			HomeAmount:       homeAmount,
			HomeCurrency:     homeCurrency,
			Country:          row.Country,
			City:             row.City,
			Note:             row.Note,
		})
		if err != nil {
			return res, err
		}
		if inserted {
			res.Created++
		} else {
			res.SkippedDuplicates++
		}
	}

	if res.SkippedDuplicates > 0 {
		s.Log.Info().
			Str("file", importFileID).
			Int("skipped", res.SkippedDuplicates).
			Msg("duplicate rows skipped")
	}
	return res, nil
}
