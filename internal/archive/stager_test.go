package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anirudh7369/UFDR-Agent/internal/config"
)

func zipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("report.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<project><decodedData></decodedData></project>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeZip(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "evidence.ufdr")
	require.NoError(t, os.WriteFile(path, zipBytes(t), 0o644))
	return path
}

func testStagerConfig(tempDir string) config.StagerConfig {
	return config.StagerConfig{
		S3Region:        "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		RetryCount:      2,
		Timeout:         5 * time.Second,
		TempDir:         tempDir,
	}
}

func TestStageLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir)

	s, err := NewStager(testStagerConfig(dir))
	require.NoError(t, err)

	staged, err := s.Stage(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, staged.Path)

	// cleanup never deletes a caller-owned file
	staged.Cleanup()
	staged.Cleanup()
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestStageMissingLocalFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStager(testStagerConfig(dir))
	require.NoError(t, err)

	_, err = s.Stage(context.Background(), filepath.Join(dir, "absent.ufdr"))
	assert.ErrorIs(t, err, ErrResourceUnavailable)
}

func TestStageInvalidArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.ufdr")
	require.NoError(t, os.WriteFile(path, []byte("not a zip at all"), 0o644))

	s, err := NewStager(testStagerConfig(dir))
	require.NoError(t, err)

	_, err = s.Stage(context.Background(), path)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestStageS3Download(t *testing.T) {
	content := zipBytes(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/evidence/case1.ufdr" {
			http.NotFound(w, r)
			return
		}
		w.Write(content)
	}))
	defer ts.Close()

	dir := t.TempDir()
	cfg := testStagerConfig(dir)
	cfg.S3Endpoint = ts.URL

	s, err := NewStager(cfg)
	require.NoError(t, err)

	staged, err := s.Stage(context.Background(), "s3://evidence/case1.ufdr")
	require.NoError(t, err)
	assert.NotEqual(t, "", staged.Path)

	got, err := os.ReadFile(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// downloaded files are temp artifacts and get removed
	staged.Cleanup()
	_, err = os.Stat(staged.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestStageS3DownloadExhaustsRetries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer ts.Close()

	dir := t.TempDir()
	cfg := testStagerConfig(dir)
	cfg.S3Endpoint = ts.URL

	s, err := NewStager(cfg)
	require.NoError(t, err)

	_, err = s.Stage(context.Background(), "s3://evidence/missing.ufdr")
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	// no staging residue left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		source  string
		bucket  string
		key     string
		wantErr bool
	}{
		{"s3://evidence/case1.ufdr", "evidence", "case1.ufdr", false},
		{"s3://evidence/cases/2023/case1.ufdr", "evidence", "cases/2023/case1.ufdr", false},
		{"http://minio.local:9000/evidence/case%201.ufdr", "evidence", "case 1.ufdr", false},
		{"s3://evidence", "", "", true},
		{"http://minio.local:9000/", "", "", true},
	}
	for _, tt := range tests {
		bucket, key, err := parseSource(tt.source)
		if tt.wantErr {
			assert.Error(t, err, tt.source)
			continue
		}
		require.NoError(t, err, tt.source)
		assert.Equal(t, tt.bucket, bucket, tt.source)
		assert.Equal(t, tt.key, key, tt.source)
	}
}
