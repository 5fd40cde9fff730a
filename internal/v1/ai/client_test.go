package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiclash/server/internal/v1/types"
)

func TestNilAndUnconfiguredClientUnavailable(t *testing.T) {
	var nilClient *Client
	_, err := nilClient.ValidateWords(context.Background(), []string{"cat"}, types.LangEnglish)
	assert.ErrorIs(t, err, ErrUnavailable)

	c := NewClient("")
	_, err = c.ValidateWord(context.Background(), "cat", types.LangEnglish)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestValidateWordsSendsBatchRequest(t *testing.T) {
	var gotPath string
	var gotReq validateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(validateResponse{Results: map[string]*Verdict{
			"zorp":  {IsValid: true, IsAIVerified: true},
			"blarg": {IsValid: false, Reason: "not a word"},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	results, err := c.ValidateWords(context.Background(), []string{"zorp", "blarg"}, types.LangEnglish)
	require.NoError(t, err)

	assert.Equal(t, "/v1/validate", gotPath)
	assert.Equal(t, []string{"zorp", "blarg"}, gotReq.Words)
	assert.Equal(t, "en", gotReq.Language)

	require.Contains(t, results, "zorp")
	assert.True(t, results["zorp"].IsValid)
	assert.True(t, results["zorp"].IsAIVerified)
	require.Contains(t, results, "blarg")
	assert.False(t, results["blarg"].IsValid)
}

func TestValidateWord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(validateResponse{Results: map[string]*Verdict{
			"zorp": {IsValid: true},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	v, err := c.ValidateWord(context.Background(), "zorp", types.LangEnglish)
	require.NoError(t, err)
	assert.True(t, v.IsValid)
}

func TestValidateWordMissingFromResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(validateResponse{Results: map[string]*Verdict{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ValidateWord(context.Background(), "zorp", types.LangEnglish)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestValidateWordsEmptyInput(t *testing.T) {
	c := NewClient("http://never-called.invalid")
	results, err := c.ValidateWords(context.Background(), nil, types.LangEnglish)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestValidateWordsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ValidateWords(context.Background(), []string{"cat"}, types.LangEnglish)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestValidateWordsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ValidateWords(context.Background(), []string{"cat"}, types.LangEnglish)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestValidateWordsUnreachableHost(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.ValidateWords(context.Background(), []string{"cat"}, types.LangEnglish)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestValidateWordsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL)
	_, err := c.ValidateWords(ctx, []string{"cat"}, types.LangEnglish)
	assert.ErrorIs(t, err, ErrUnavailable)
}
