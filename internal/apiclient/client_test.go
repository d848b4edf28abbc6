package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"learnbridge_backend/internal/config"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.APIConfig{BaseURL: srv.URL + "/"})
}

func TestSimplifyText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/text/simplify", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req SimplifyTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "The quick brown fox", req.Text)

		json.NewEncoder(w).Encode(SimplifyTextResponse{Original: req.Text, Simplified: "A fast fox"})
	})

	resp, err := c.SimplifyText(context.Background(), "tok", SimplifyTextRequest{Text: "The quick brown fox"})
	require.NoError(t, err)
	assert.Equal(t, "A fast fox", resp.Simplified)
}

func TestAnalyzeMovementUploadsFrames(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/movement/analyze", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		frames := r.MultipartForm.File["frames"]
		require.Len(t, frames, 2)
		f, err := frames[1].Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "frame-2", string(data))

		json.NewEncoder(w).Encode(MovementResponse{FramesAnalyzed: len(frames), BalanceScore: 0.8})
	})

	resp, err := c.AnalyzeMovement(context.Background(), "", []File{
		{Name: "1.jpg", Data: strings.NewReader("frame-1")},
		{Name: "2.jpg", Data: strings.NewReader("frame-2")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.FramesAnalyzed)
	assert.InDelta(t, 0.8, resp.BalanceScore, 0.0001)
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	})

	_, err := c.AdminStats(context.Background(), "tok")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Contains(t, apiErr.Body, "model unavailable")
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c.WithTimeouts(50*time.Millisecond, 50*time.Millisecond)

	_, err := c.StudentReport(context.Background(), "tok", 7)
	assert.ErrorIs(t, err, ErrTimeout)

	err = c.SendEmail(context.Background(), "tok", EmailRequest{To: "a@example.com"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestStudentReportReturnsBytes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/reports/students/12/pdf", r.URL.Path)
		assert.Equal(t, "application/pdf", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	})

	data, err := c.StudentReport(context.Background(), "tok", 12)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}
