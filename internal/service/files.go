package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jask/bankfeed/internal/database/repository"
)

// FileService tracks uploaded files and their attachment to imports.
type FileService struct {
	Files   *repository.ImportFileRepo
	Imports *repository.ImportRepo
	Log     zerolog.Logger
}

// RegisterUpload records a completed upload handed over by the upload
// collaborator.
func (s *FileService) RegisterUpload(ctx context.Context, url string) (repository.ImportFile, error) {
	f := repository.ImportFile{
		ID:     uuid.NewString(),
		URL:    url,
		Status: repository.FileUploaded,
	}
	if err := s.Files.Create(ctx, f); err != nil {
		return repository.ImportFile{}, err
	}
	s.Log.Debug().Str("file", f.ID).Str("url", url).Msg("upload registered")
	return f, nil
}

// AttachToImport links a file to a draft import and bumps the import's file
// count. Attaching to an activated import, or re-attaching an already
// attached file, is a conflict.
func (s *FileService) AttachToImport(ctx context.Context, fileID, importID string) error {
	f, err := s.Files.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if f == nil {
		return notFound("import file %s", fileID)
	}
	imp, err := s.Imports.Get(ctx, importID)
	if err != nil {
		return err
	}
	if imp == nil {
		return notFound("import %s", importID)
	}
	if f.ImportID != nil {
		return conflict("file %s already attached to import %s", fileID, *f.ImportID)
	}
	if imp.Status != repository.ImportDraft {
		return conflict("import %s is %s, files can only be attached to a draft", importID, imp.Status)
	}

	ok, err := s.Files.Attach(ctx, fileID, importID)
	if err != nil {
		return err
	}
	if !ok {
		return conflict("file %s attached concurrently", fileID)
	}
	return s.Imports.AddFiles(ctx, importID, 1)
}
