package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/quill/internal/rest"
)

type work struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func writeEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "data": data})
}

func TestClient_DecodesData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/works/w1", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, 0, "ok", work{ID: "w1", Title: "Novel"})
	}))
	defer server.Close()

	client := rest.New(server.URL+"/api", rest.StaticToken("secret"))
	var got work
	require.NoError(t, client.Get(context.Background(), "/works/w1", &got))
	assert.Equal(t, work{ID: "w1", Title: "Novel"}, got)
}

func TestClient_AcceptsCode200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, 200, "success", work{ID: "w2"})
	}))
	defer server.Close()

	var got work
	require.NoError(t, rest.New(server.URL, nil).Get(context.Background(), "works/w2", &got))
	assert.Equal(t, "w2", got.ID)
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, 0, "", nil)
	}))
	defer server.Close()

	require.NoError(t, rest.New(server.URL, rest.StaticToken("")).Get(context.Background(), "/ping", nil))
}

func TestClient_BusinessErrorLeavesOutUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, 40001, "not found", nil)
	}))
	defer server.Close()

	got := work{ID: "unchanged"}
	err := rest.New(server.URL, nil).Get(context.Background(), "/works/missing", &got)
	require.Error(t, err)

	var apiErr *rest.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 40001, apiErr.Code)
	assert.Equal(t, "not found", apiErr.Message)
	assert.True(t, rest.IsNotFound(err))
	assert.True(t, rest.IsCode(err, 40001))
	assert.Equal(t, work{ID: "unchanged"}, got)
}

func TestClient_HTTPErrorWithoutEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "denied")
	}))
	defer server.Close()

	err := rest.New(server.URL, nil).Post(context.Background(), "/works", work{Title: "x"}, nil)
	var apiErr *rest.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Unauthorized", apiErr.Message)
	assert.True(t, rest.IsUnauthorized(err))
}

func TestClient_HTTPErrorWithEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, 40010, "title required", nil)
	}))
	defer server.Close()

	err := rest.New(server.URL, nil).Post(context.Background(), "/works", work{}, nil)
	var apiErr *rest.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 40010, apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, err.Error(), "title required")
}

func TestClient_RetriesIdempotentOnce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeEnvelope(w, http.StatusOK, 0, "", work{ID: "w3"})
	}))
	defer server.Close()

	var got work
	require.NoError(t, rest.New(server.URL, nil).Get(context.Background(), "/works/w3", &got))
	assert.Equal(t, "w3", got.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_RetryGivesUpAfterSecondFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := rest.New(server.URL, nil).Delete(context.Background(), "/works/w4", nil)
	var apiErr *rest.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_RetryResendsBody(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in work
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Renamed", in.Title)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeEnvelope(w, http.StatusOK, 0, "", in)
	}))
	defer server.Close()

	var got work
	require.NoError(t, rest.New(server.URL, nil).Put(context.Background(), "/works/w5", work{Title: "Renamed"}, &got))
	assert.Equal(t, "Renamed", got.Title)
}

func TestClient_DoesNotRetryNonIdempotent(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer server.Close()

			err := rest.New(server.URL, nil).Do(context.Background(), method, "/works", work{}, nil)
			require.Error(t, err)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestClient_DoesNotRetryBusinessErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusOK, 40001, "not found", nil)
	}))
	defer server.Close()

	err := rest.New(server.URL, nil).Get(context.Background(), "/works/x", nil)
	assert.True(t, rest.IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_AbsoluteURLIgnoresBase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/direct", r.URL.Path)
		writeEnvelope(w, http.StatusOK, 0, "", nil)
	}))
	defer server.Close()

	client := rest.New("http://127.0.0.1:1/api", nil)
	require.NoError(t, client.Get(context.Background(), server.URL+"/direct", nil))
}

func TestClient_RelativePathWithoutBase(t *testing.T) {
	err := rest.New("", nil).Get(context.Background(), "/works", nil)
	assert.Error(t, err)
}

func TestClient_MalformedSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	defer server.Close()

	err := rest.New(server.URL, nil).Get(context.Background(), "/", nil)
	require.Error(t, err)
	var apiErr *rest.APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestClient_EmptyBodyOnNoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	assert.NoError(t, rest.New(server.URL, nil).Delete(context.Background(), "/works/w6", nil))
}

func TestClient_TransportErrorRetriedThenReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := rest.New(url, nil).Get(context.Background(), "/works", nil)
	require.Error(t, err)
	var apiErr *rest.APIError
	assert.False(t, errors.As(err, &apiErr))
}
