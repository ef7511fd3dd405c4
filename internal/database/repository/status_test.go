package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImportStatusTransitions(t *testing.T) {
	t.Parallel()

	allowed := [][2]ImportStatus{
		{ImportDraft, ImportPending},
		{ImportPending, ImportProcessing},
		{ImportProcessing, ImportCompleted},
		{ImportProcessing, ImportFailed},
		{ImportFailed, ImportProcessing},
	}
	for _, tr := range allowed {
		require.True(t, tr[0].CanTransition(tr[1]), "%s -> %s should be allowed", tr[0], tr[1])
	}

	denied := [][2]ImportStatus{
		{ImportDraft, ImportProcessing},
		{ImportDraft, ImportCompleted},
		{ImportPending, ImportCompleted},
		{ImportCompleted, ImportProcessing},
		{ImportCompleted, ImportFailed},
		{ImportFailed, ImportCompleted},
		{ImportProcessing, ImportDraft},
	}
	for _, tr := range denied {
		require.False(t, tr[0].CanTransition(tr[1]), "%s -> %s should be rejected", tr[0], tr[1])
	}

	require.True(t, ImportCompleted.Terminal())
	require.True(t, ImportFailed.Terminal())
	require.False(t, ImportProcessing.Terminal())
}

func TestFileStatusTransitions(t *testing.T) {
	t.Parallel()

	require.True(t, FileUploaded.CanTransition(FileParsing))
	require.True(t, FileParsing.CanTransition(FileParsed))
	require.True(t, FileParsing.CanTransition(FileFailed))
	require.True(t, FileParsed.CanTransition(FileImported))

	require.False(t, FileUploaded.CanTransition(FileParsed))
	require.False(t, FileUploaded.CanTransition(FileImported))
	require.False(t, FileParsed.CanTransition(FileFailed))
	require.False(t, FileImported.CanTransition(FileParsing))

	// Any state may be reset to uploaded; that is the retry escape hatch.
	for _, s := range []FileStatus{FileParsing, FileParsed, FileImported, FileFailed} {
		require.True(t, s.CanTransition(FileUploaded), "%s -> uploaded should be allowed", s)
	}

	require.True(t, FileImported.Terminal())
	require.True(t, FileFailed.Terminal())
	require.False(t, FileParsed.Terminal())
}
