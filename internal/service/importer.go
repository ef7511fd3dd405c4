// Package service contains the import orchestration: file tracking, the
// per-file transform/create pipeline, and the reconciliation of per-file
// outcomes into one import's aggregate status.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jask/bankfeed/internal/database"
	"github.com/jask/bankfeed/internal/database/repository"
	"github.com/jask/bankfeed/internal/storage"
	"github.com/jask/bankfeed/internal/transform"
)

const defaultMaxConcurrentTransforms = 4

// ImportService owns the logical import: it creates and activates imports,
// drives per-file processing, and decides the aggregate status. Files of the
// same import may be processed concurrently; the aggregate counters are
// updated under a per-import lock so near-simultaneous finishes cannot lose
// updates.
type ImportService struct {
	Imports  *repository.ImportRepo
	Files    *repository.ImportFileRepo
	Accounts *repository.BankAccountRepo
	Txs      *repository.TransactionRepo
	Creator  *TransactionService
	Engine   *transform.Engine
	Fetcher  storage.Fetcher
	Log      zerolog.Logger

	// TransformTimeout bounds one file's transform wall-clock time.
	TransformTimeout time.Duration
	// MaxConcurrentTransforms bounds parallel transform executions.
	MaxConcurrentTransforms int

	semOnce sync.Once
	sem     chan struct{}
	locks   lockMap
}

// FileOutcome summarizes one ProcessFile invocation.
type FileOutcome struct {
	FileID            string
	Status            repository.FileStatus
	TransactionCount  int
	Imported          int
	SkippedDuplicates int
	RowErrors         int
	ConversionErrors  int
	AlreadyImported   bool
}

// Create starts a new import in draft for the given bank account.
func (s *ImportService) Create(ctx context.Context, userID, bankAccountID string) (repository.Import, error) {
	acct, err := s.Accounts.Get(ctx, bankAccountID)
	if err != nil {
		return repository.Import{}, err
	}
	if acct == nil || acct.UserID != userID {
		return repository.Import{}, notFound("bank account %s", bankAccountID)
	}

	imp := repository.Import{
		ID:            uuid.NewString(),
		UserID:        userID,
		BankAccountID: bankAccountID,
		Status:        repository.ImportDraft,
	}
	if err := s.Imports.Create(ctx, imp); err != nil {
		return repository.Import{}, err
	}
	s.Log.Info().Str("import", imp.ID).Str("account", bankAccountID).Msg("import created")
	return imp, nil
}

// AttachFile links an uploaded file to a draft import.
func (s *ImportService) AttachFile(ctx context.Context, userID, importID, fileID string) error {
	if _, err := s.ownedImport(ctx, userID, importID); err != nil {
		return err
	}
	fs := &FileService{Files: s.Files, Imports: s.Imports, Log: s.Log}
	return fs.AttachToImport(ctx, fileID, importID)
}

// Activate moves a draft import to pending. An import with no files cannot
// be activated.
func (s *ImportService) Activate(ctx context.Context, userID, importID string) error {
	imp, err := s.ownedImport(ctx, userID, importID)
	if err != nil {
		return err
	}
	if imp.FileCount == 0 {
		return conflict("import %s has no files attached", importID)
	}
	if err := s.Imports.Transition(ctx, importID, repository.ImportDraft, repository.ImportPending); err != nil {
		var terr *repository.TransitionError
		if errors.As(err, &terr) {
			return fmt.Errorf("%w: %s", ErrConflict, terr.Error())
		}
		return err
	}
	s.Log.Info().Str("import", importID).Int("files", imp.FileCount).Msg("import activated")
	return nil
}

// ProcessFile transforms and imports one file, then folds the outcome into
// the import's aggregates. Re-invoking it for an already imported file is a
// no-op, so retried orchestration calls are safe.
func (s *ImportService) ProcessFile(ctx context.Context, userID, importID, fileID string) (*FileOutcome, error) {
	imp, err := s.ownedImport(ctx, userID, importID)
	if err != nil {
		return nil, err
	}
	file, err := s.Files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, notFound("import file %s", fileID)
	}
	if file.ImportID == nil || *file.ImportID != importID {
		return nil, conflict("file %s is not attached to import %s", fileID, importID)
	}

	if file.Status == repository.FileImported {
		return &FileOutcome{
			FileID:           fileID,
			Status:           file.Status,
			TransactionCount: file.TransactionCount,
			Imported:         file.ImportedTransactionCount,
			AlreadyImported:  true,
		}, nil
	}
	if file.Status != repository.FileUploaded {
		return nil, conflict("file %s is %s, retry it before re-processing", fileID, file.Status)
	}

	if err := s.ensureProcessing(ctx, importID, imp.Status); err != nil {
		return nil, err
	}

	acct, err := s.Accounts.Get(ctx, imp.BankAccountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, notFound("bank account %s", imp.BankAccountID)
	}

	if err := s.Files.Transition(ctx, fileID, repository.FileUploaded, repository.FileParsing); err != nil {
		var terr *repository.TransitionError
		if errors.As(err, &terr) {
			// Another worker claimed this file.
			return nil, fmt.Errorf("%w: %s", ErrConflict, terr.Error())
		}
		return nil, err
	}

	res, terr := s.runTransform(ctx, file.URL, acct.Config)
	if terr != nil {
		msg := terr.Error()
		if err := s.Files.SetParseResult(ctx, fileID, repository.FileFailed, 0, &msg); err != nil {
			return nil, err
		}
		s.Log.Warn().Str("import", importID).Str("file", fileID).Err(terr).Msg("file transform failed")
		if err := s.reconcile(ctx, importID); err != nil {
			return nil, err
		}
		return &FileOutcome{FileID: fileID, Status: repository.FileFailed}, terr
	}

	total := len(res.Rows) + len(res.RowErrors)
	if err := s.Files.SetParseResult(ctx, fileID, repository.FileParsed, total, nil); err != nil {
		return nil, err
	}

	createRes, err := s.Creator.CreateMany(ctx, res.Rows, fileID, imp.BankAccountID, userID)
	if err != nil {
		return nil, fmt.Errorf("create transactions for file %s: %w", fileID, err)
	}
	if err := s.Files.SetImportResult(ctx, fileID, createRes.Created, database.Now()); err != nil {
		return nil, err
	}

	mu := s.locks.get(importID)
	mu.Lock()
	defer mu.Unlock()
	if err := s.Imports.ApplyFileOutcome(ctx, importID, 1, createRes.Created); err != nil {
		return nil, err
	}
	if err := s.reconcileLocked(ctx, importID); err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("import", importID).
		Str("file", fileID).
		Int("rows", total).
		Int("imported", createRes.Created).
		Int("duplicates", createRes.SkippedDuplicates).
		Int("row_errors", len(res.RowErrors)).
		Msg("file imported")

	return &FileOutcome{
		FileID:            fileID,
		Status:            repository.FileImported,
		TransactionCount:  total,
		Imported:          createRes.Created,
		SkippedDuplicates: createRes.SkippedDuplicates,
		RowErrors:         len(res.RowErrors),
		ConversionErrors:  createRes.ConversionErrors,
	}, nil
}

// Retry resets a terminal file to uploaded and rolls back its contribution
// to the import aggregates, including previously created transactions, so
// re-processing cannot double count. Files of a completed import cannot be
// retried.
func (s *ImportService) Retry(ctx context.Context, userID, importID, fileID string) error {
	imp, err := s.ownedImport(ctx, userID, importID)
	if err != nil {
		return err
	}
	if imp.Status == repository.ImportCompleted {
		return conflict("import %s is completed", importID)
	}
	file, err := s.Files.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if file == nil {
		return notFound("import file %s", fileID)
	}
	if file.ImportID == nil || *file.ImportID != importID {
		return conflict("file %s is not attached to import %s", fileID, importID)
	}
	if !file.Status.Terminal() {
		return conflict("file %s is %s, only terminal files can be retried", fileID, file.Status)
	}

	mu := s.locks.get(importID)
	mu.Lock()
	defer mu.Unlock()

	if file.Status == repository.FileImported {
		if _, err := s.Txs.DeleteByFile(ctx, fileID); err != nil {
			return err
		}
		if err := s.Imports.ApplyFileOutcome(ctx, importID, -1, -file.ImportedTransactionCount); err != nil {
			return err
		}
	}
	if err := s.Files.Reset(ctx, fileID); err != nil {
		return err
	}
	if imp.Status == repository.ImportFailed {
		if err := s.Imports.Transition(ctx, importID, repository.ImportFailed, repository.ImportProcessing); err != nil {
			return err
		}
	}
	s.Log.Info().Str("import", importID).Str("file", fileID).Msg("file reset for retry")
	return nil
}

// ownedImport loads an import and enforces per-user ownership; a foreign
// import is indistinguishable from a missing one.
func (s *ImportService) ownedImport(ctx context.Context, userID, importID string) (*repository.Import, error) {
	imp, err := s.Imports.Get(ctx, importID)
	if err != nil {
		return nil, err
	}
	if imp == nil || imp.UserID != userID {
		return nil, notFound("import %s", importID)
	}
	return imp, nil
}

// ensureProcessing moves the import into processing, tolerating a concurrent
// worker having done so already.
func (s *ImportService) ensureProcessing(ctx context.Context, importID string, cur repository.ImportStatus) error {
	switch cur {
	case repository.ImportProcessing:
		return nil
	case repository.ImportPending, repository.ImportFailed:
		err := s.Imports.Transition(ctx, importID, cur, repository.ImportProcessing)
		var terr *repository.TransitionError
		if errors.As(err, &terr) {
			imp, gerr := s.Imports.Get(ctx, importID)
			if gerr != nil {
				return gerr
			}
			if imp != nil && imp.Status == repository.ImportProcessing {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrConflict, terr.Error())
		}
		return err
	default:
		return conflict("import %s is %s, activate it before processing", importID, cur)
	}
}

// runTransform fetches the file bytes and executes the transform under the
// configured concurrency and timeout limits. Any failure here is fatal for
// the file.
func (s *ImportService) runTransform(ctx context.Context, url string, cfg repository.TransformConfig) (*transform.Result, error) {
	release := s.acquire()
	defer release()

	rc, err := s.Fetcher.Open(ctx, url)
	if err != nil {
		return nil, &transform.TransformError{Stage: "read", Err: err}
	}
	defer rc.Close()

	if s.TransformTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.TransformTimeout)
		defer cancel()
	}

	return s.Engine.Run(ctx, transform.Source{
		Reader:    rc,
		Delimiter: cfg.DelimiterRune(),
		HasHeader: cfg.HasHeader,
	}, transform.Config{
		IDColumns: cfg.IDColumns,
		IDField:   cfg.IDField,
		Query:     cfg.Query,
	})
}

// reconcile recomputes the import's terminal status from its files' states.
func (s *ImportService) reconcile(ctx context.Context, importID string) error {
	mu := s.locks.get(importID)
	mu.Lock()
	defer mu.Unlock()
	return s.reconcileLocked(ctx, importID)
}

func (s *ImportService) reconcileLocked(ctx context.Context, importID string) error {
	imp, err := s.Imports.Get(ctx, importID)
	if err != nil {
		return err
	}
	if imp == nil || imp.Status != repository.ImportProcessing {
		return nil
	}

	files, err := s.Files.ListByImport(ctx, importID)
	if err != nil {
		return err
	}
	anyFailed := false
	allTerminal := true
	for _, f := range files {
		if f.Status == repository.FileFailed {
			anyFailed = true
		}
		if !f.Status.Terminal() {
			allTerminal = false
		}
	}

	switch {
	case !anyFailed && imp.FileCount > 0 && imp.ImportedFileCount == imp.FileCount:
		if err := s.Imports.SetCompleted(ctx, importID, database.Now()); err != nil {
			return err
		}
		s.Log.Info().Str("import", importID).Int("files", imp.FileCount).
			Int("transactions", imp.ImportedTransactionCount).Msg("import completed")
	case anyFailed && allTerminal:
		if err := s.Imports.Transition(ctx, importID, repository.ImportProcessing, repository.ImportFailed); err != nil {
			return err
		}
		s.Log.Warn().Str("import", importID).Msg("import failed")
	}
	return nil
}

func (s *ImportService) acquire() func() {
	s.semOnce.Do(func() {
		n := s.MaxConcurrentTransforms
		if n <= 0 {
			n = defaultMaxConcurrentTransforms
		}
		s.sem = make(chan struct{}, n)
	})
	s.sem <- struct{}{}
	return func() { <-s.sem }
}

// lockMap hands out one mutex per import id.
type lockMap struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *lockMap) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	mu := l.m[id]
	if mu == nil {
		mu = &sync.Mutex{}
		l.m[id] = mu
	}
	return mu
}
