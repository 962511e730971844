package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrelay/docrelay/internal/core/domain"
)

func TestUploadCmd_RequiresArgs(t *testing.T) {
	_, err := execute("upload")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestUploadCmd_IngestsFile(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	path := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0600))

	out, err := execute("upload", path)

	require.NoError(t, err)
	assert.Contains(t, out, "scan.pdf -> doc-1")
	assert.Contains(t, out, "application/pdf")
}

func TestUploadCmd_ReportsRejections(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	ingestService.(*fakeIngestSvc).err = domain.ErrUnsupportedType

	path := filepath.Join(t.TempDir(), "binary.exe")
	require.NoError(t, os.WriteFile(path, []byte{0x7f, 'E', 'L', 'F'}, 0600))

	out, err := execute("upload", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 files rejected")
	assert.Contains(t, out, "binary.exe")
}

func TestUploadCmd_MissingFileIsReported(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("upload", filepath.Join(t.TempDir(), "nope.pdf"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestFetchCmd_Executes(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("fetch", "https://example.org/remote.pdf")

	require.NoError(t, err)
	assert.Contains(t, out, "remote.pdf -> doc-2")
}

func TestFetchCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := execute("fetch")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}
