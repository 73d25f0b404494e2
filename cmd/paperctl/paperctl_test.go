package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appanalysis "github.com/bryanwahyu/paperscore/internal/application/analysis"
)

func TestAPIClientSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/analyses", r.URL.Path)
		assert.Equal(t, "Bearer k-1", r.Header.Get("Authorization"))
		var cmd appanalysis.SubmitCommand
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		assert.Equal(t, "uploads/acme/x-thesis.pdf", cmd.FileRef)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"j1","tier":"standard","credits_charged":3}`))
	}))
	defer srv.Close()

	var res appanalysis.SubmitResult
	err := newAPIClient(srv.URL+"/", "k-1").do(context.Background(), http.MethodPost, "/v1/analyses",
		appanalysis.SubmitCommand{OwnerID: "acme", FileRef: "uploads/acme/x-thesis.pdf", FileName: "thesis.pdf"}, &res)
	require.NoError(t, err)
	assert.Equal(t, "j1", res.ID)
	assert.Equal(t, 3, res.CreditsCharged)
}

func TestAPIClientSurfacesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"insufficient credits: 3 needed, balance 1"}`))
	}))
	defer srv.Close()

	err := newAPIClient(srv.URL, "").do(context.Background(), http.MethodPost, "/v1/analyses", struct{}{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
	assert.Contains(t, err.Error(), "insufficient credits: 3 needed, balance 1")
}

func TestUploadKey(t *testing.T) {
	key := uploadKey("acme", "/home/me/drafts/thesis.pdf")
	assert.True(t, strings.HasPrefix(key, "uploads/acme/"))
	assert.True(t, strings.HasSuffix(key, "-thesis.pdf"))
	assert.NotEqual(t, key, uploadKey("acme", "/home/me/drafts/thesis.pdf"))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, []any{"ID", "Status"}, [][]any{{"j1", "completed"}})
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "completed")

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{
		{"migrate"},
		{"credits", "grant"},
		{"credits", "balance"},
		{"submit"},
		{"status"},
		{"inspect"},
		{"deadletters", "list"},
		{"dlq", "requeue"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
