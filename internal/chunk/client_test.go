package chunk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

const parseFixture = `{"chunks":[
 {"id":"chunk:1","language":"java","subType":"function","className":"AuthService","methodName":"login",
  "apiName":"AuthService#login","docSummary":"Logs a user in.","content":"public void login() {}"},
 {"id":"chunk:2","language":"java","subType":null,"className":null,"methodName":null,
  "apiName":null,"docSummary":null,"content":"static { init(); }"},
 {"id":"chunk:3","language":"java","content":"   "}
]}`

func TestClient_Parse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/parse", r.URL.Path)
		var req parseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "java", req.Language)
		assert.Equal(t, 1000, req.MaxChars)
		assert.Contains(t, req.Code, "class AuthService")
		_, _ = w.Write([]byte(parseFixture))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL + "/"})
	chunks, err := c.Parse(context.Background(), "java", "class AuthService { void login() {} }")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "AuthService#login", chunks[0].APIName)
	assert.Equal(t, "Logs a user in.", chunks[0].DocSummary)
	assert.Equal(t, "function", chunks[0].SubType)

	assert.Empty(t, chunks[1].ClassName)
	assert.Empty(t, chunks[1].APIName)
	assert.Equal(t, "static { init(); }", chunks[1].Content)
}

func TestClient_ParseBlankSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL})
	chunks, err := c.Parse(context.Background(), "java", "  \n")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	chunks, err = c.Parse(context.Background(), "", "class A {}")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Zero(t, calls.Load())
}

func TestClient_ParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retries   int
		wantCode  string
		wantCalls int32
	}{
		{"unsupported language is not retried", http.StatusBadRequest, 2, amerrors.ErrCodeInvalidInput, 1},
		{"server error is retried", http.StatusInternalServerError, 2, amerrors.ErrCodeChunkerFailed, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "boom", tt.status)
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{URL: srv.URL, MaxRetries: tt.retries})
			_, err := c.Parse(context.Background(), "cobol", "IDENTIFICATION DIVISION.")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, amerrors.GetCode(err))
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestClient_ParseTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.Parse(context.Background(), "java", "class A {}")
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeProviderTimeout, amerrors.GetCode(err))
}

func TestClient_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	c := NewClient(ClientConfig{URL: srv.URL})
	assert.True(t, c.Healthy(context.Background()))

	srv.Close()
	assert.False(t, c.Healthy(context.Background()))
}

func TestInferLanguage(t *testing.T) {
	tests := map[string]string{
		"src/Main.java":      "java",
		"web/App.TSX":        "typescript",
		"lib/util.jsx":       "javascript",
		"tool/main.go":       "go",
		"native/x.hpp":       "c",
		"native/y.cc":        "cpp",
		"svc/Program.cs":     "csharp",
		"app/Model.kt":       "kotlin",
		"README.md":          LanguageUnknown,
		"Makefile":           LanguageUnknown,
		"scripts/build.rb":   "ruby",
		"core/lib.rs":        "rust",
		"jobs/Spark.scala":   "scala",
		"ios/View.swift":     "swift",
		"py/pkg/__init__.py": "python",
	}
	for path, want := range tests {
		assert.Equal(t, want, InferLanguage(path), path)
	}
}
