package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	client := New(nil)
	require.NotNil(t, client)
	assert.Equal(t, 30*time.Second, client.config.Timeout)
	assert.Equal(t, 30*time.Second, client.HTTPClient().Timeout)

	client = New(&Config{Timeout: 10 * time.Second})
	assert.Equal(t, 10*time.Second, client.HTTPClient().Timeout)
}

func getRequest(target string, headers map[string]string) *Request {
	return &Request{Method: http.MethodGet, URL: target, Headers: headers}
}

func TestDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "test-value", r.Header.Get("Test-Header"))
		assert.Equal(t, "default", r.Header.Get("X-Default"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"success"}`))
	}))
	defer server.Close()

	client := New(&Config{Timeout: 5 * time.Second, DefaultHeaders: map[string]string{"X-Default": "default"}})
	resp, err := client.Do(context.Background(), getRequest(server.URL, map[string]string{"Test-Header": "test-value"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, resp.JSON(&result))
	assert.Equal(t, "success", result["message"])
}

func TestDoMarshalsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"value":42}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	resp, err := New(nil).Do(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    server.URL,
		Body:   map[string]int{"value": 42},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestPostForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "a b&c", r.Form.Get("code"))
		_, _ = w.Write([]byte("form received"))
	}))
	defer server.Close()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", "a b&c")

	resp, err := New(nil).PostForm(context.Background(), server.URL, form, nil)
	require.NoError(t, err)
	assert.Equal(t, "form received", resp.String())
}

func TestErrorStatusReturnsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	resp, err := New(nil).Do(context.Background(), getRequest(server.URL, nil))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, `{"error":"invalid_grant"}`, statusErr.Body)
}

func TestSingleAttempt(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := New(nil).Do(context.Background(), getRequest(server.URL, nil))
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(nil).Do(ctx, getRequest(server.URL, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
