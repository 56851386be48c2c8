package model

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
)

func fastLLMClient(url string) *LLMClient {
	c := NewLLMClient(url, "test-model")
	c.retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return c
}

func TestGenerateSingleResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "sys", req.System)
		assert.Equal(t, "ask", req.Prompt)
		json.NewEncoder(w).Encode(GenerateResponse{Response: "the answer", Done: true})
	}))
	defer srv.Close()

	client := fastLLMClient(srv.URL)
	got, err := client.Generate(context.Background(), "sys", "ask")
	require.NoError(t, err)
	assert.Equal(t, "the answer", got)
}

func TestGenerateStreamedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response": "", "done": false}` + "\n"))
		w.Write([]byte(`{"response": "part one ", "done": false}` + "\n"))
		w.Write([]byte(`{"response": "part two", "done": true}` + "\n"))
	}))
	defer srv.Close()

	client := fastLLMClient(srv.URL)
	got, err := client.Generate(context.Background(), "sys", "ask")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", got)
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(GenerateResponse{Response: "recovered", Done: true})
	}))
	defer srv.Close()

	client := fastLLMClient(srv.URL)
	got, err := client.Generate(context.Background(), "sys", "ask")
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := fastLLMClient(srv.URL)
	_, err := client.Generate(context.Background(), "sys", "ask")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtractJSON(t *testing.T) {
	got, err := ExtractJSON("Sure! Here it is: {\"a\": 1} hope that helps")
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, got)

	_, err = ExtractJSON("no braces here")
	assert.Error(t, err)
}

func TestExtractJSONArray(t *testing.T) {
	got, err := ExtractJSONArray("```json\n[{\"q\": \"x\"}]\n```")
	require.NoError(t, err)
	assert.Equal(t, `[{"q": "x"}]`, got)

	_, err = ExtractJSONArray("nothing")
	assert.Error(t, err)
}

func TestBuildRepairPromptEmbedsBadOutput(t *testing.T) {
	prompt := BuildRepairPrompt(`{"broken":`)
	assert.Contains(t, prompt, `{"broken":`)
	assert.Contains(t, prompt, "FIX the JSON")
}
