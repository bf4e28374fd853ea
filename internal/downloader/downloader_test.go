package downloader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchStreamsInChunks(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 1000)
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	defer server.Close()

	c := NewClient(Options{ChunkSize: 1024, Token: "ghp_test123"}, testLogger())
	dest := filepath.Join(t.TempDir(), "yellow", "yellow_tripdata_2019-01.csv.gz")

	var calls int
	var last, lastTotal int64
	n, err := c.Fetch(context.Background(), server.URL+"/yellow/file.csv.gz", dest, func(written, total int64) {
		calls++
		assert.Greater(t, written, last)
		last, lastTotal = written, total
	})
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, int64(len(data)), last)
	assert.Equal(t, int64(len(data)), lastTotal)
	assert.GreaterOrEqual(t, calls, len(data)/1024)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.Equal(t, "Bearer ghp_test123", gotHeader.Get("Authorization"))
	assert.Equal(t, "application/octet-stream", gotHeader.Get("Accept"))
	assert.Equal(t, userAgent, gotHeader.Get("User-Agent"))
}

func TestFetchWithoutToken(t *testing.T) {
	c := NewClient(Options{}, testLogger())
	assert.Empty(t, c.Header().Get("Authorization"))
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	})
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(Options{}, testLogger())
	dest := filepath.Join(t.TempDir(), "out.csv.gz")
	n, err := c.Fetch(context.Background(), server.URL+"/start", dest, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len("payload")), n)
}

func TestFetchBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(Options{}, testLogger())
	dest := filepath.Join(t.TempDir(), "out.csv.gz")
	_, err := c.Fetch(context.Background(), server.URL+"/missing", dest, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadStatus))

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.NoFileExists(t, dest)
}

func TestFetchRemovesPartialFileOnBrokenBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// promise more than is sent so the client sees an unexpected EOF
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
	}))
	defer server.Close()

	c := NewClient(Options{}, testLogger())
	dest := filepath.Join(t.TempDir(), "out.csv.gz")
	_, err := c.Fetch(context.Background(), server.URL, dest, nil)
	require.Error(t, err)
	assert.NoFileExists(t, dest)
}

func TestFetchHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(Options{}, testLogger())
	_, err := c.Fetch(ctx, server.URL, filepath.Join(t.TempDir(), "x"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
