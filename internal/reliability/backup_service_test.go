package reliability_test

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketclass/internal/database"
	"github.com/aristath/marketclass/internal/reliability"
	mtesting "github.com/aristath/marketclass/internal/testing"
)

func TestCreateBackupWritesLocalArchive(t *testing.T) {
	gameDB, cleanupGame := mtesting.NewTestDB(t, "game")
	t.Cleanup(cleanupGame)
	marketDB, cleanupMarket := mtesting.NewTestDB(t, "market")
	t.Cleanup(cleanupMarket)

	dataDir := t.TempDir()
	svc := reliability.NewBackupService([]*database.DB{gameDB, marketDB}, nil, dataDir, zerolog.Nop())

	archivePath, err := svc.CreateBackup(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(archivePath, dataDir))
	assert.True(t, strings.HasSuffix(archivePath, ".tar.gz"))

	entries := readArchive(t, archivePath)
	require.Contains(t, entries, "game.db")
	require.Contains(t, entries, "market.db")
	require.Contains(t, entries, "backup-metadata.json")

	var manifest reliability.BackupMetadata
	require.NoError(t, json.Unmarshal(entries["backup-metadata.json"], &manifest))
	require.Len(t, manifest.Databases, 2)
	for _, db := range manifest.Databases {
		assert.True(t, strings.HasPrefix(db.Checksum, "sha256:"))
		assert.Greater(t, db.SizeBytes, int64(0))
		assert.Equal(t, int64(len(entries[db.Filename])), db.SizeBytes)
	}

	// The staging directory is cleaned up; only backups/ remains.
	dirs, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "backups", dirs[0].Name())
}

func TestListAndRotateWithoutRemote(t *testing.T) {
	gameDB, cleanup := mtesting.NewTestDB(t, "game")
	t.Cleanup(cleanup)

	svc := reliability.NewBackupService([]*database.DB{gameDB}, nil, t.TempDir(), zerolog.Nop())

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, backups)

	assert.NoError(t, svc.RotateOldBackups(context.Background(), 14))
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	require.NoError(t, err)
	defer gzReader.Close()

	entries := map[string][]byte{}
	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		data, err := io.ReadAll(tarReader)
		require.NoError(t, err)
		entries[header.Name] = data
	}
	return entries
}
