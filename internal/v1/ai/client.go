// Package ai wraps the external word-validation service. The service may
// be unconfigured or down; callers receive ErrUnavailable and must treat
// the verdict as absent, never as invalid.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lexiclash/server/internal/v1/types"
)

// ErrUnavailable is the sentinel for a missing or unreachable oracle.
var ErrUnavailable = errors.New("ai oracle unavailable")

// Verdict is the oracle's answer for one word.
type Verdict struct {
	IsValid      bool   `json:"isValid"`
	IsAIVerified bool   `json:"isAiVerified"`
	Reason       string `json:"reason,omitempty"`
}

// Oracle is the word-validation collaborator contract.
type Oracle interface {
	ValidateWord(ctx context.Context, word string, lang types.Language) (*Verdict, error)
	ValidateWords(ctx context.Context, words []string, lang types.Language) (map[string]*Verdict, error)
}

// Client talks to the oracle over HTTP. A nil or zero-URL client is a
// permanent ErrUnavailable.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for baseURL. Empty baseURL disables the oracle.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type validateRequest struct {
	Words    []string `json:"words"`
	Language string   `json:"language"`
}

type validateResponse struct {
	Results map[string]*Verdict `json:"results"`
}

// ValidateWord asks the oracle about a single word.
func (c *Client) ValidateWord(ctx context.Context, word string, lang types.Language) (*Verdict, error) {
	results, err := c.ValidateWords(ctx, []string{word}, lang)
	if err != nil {
		return nil, err
	}
	v, ok := results[word]
	if !ok {
		return nil, ErrUnavailable
	}
	return v, nil
}

// ValidateWords asks the oracle about a batch of words in one call.
func (c *Client) ValidateWords(ctx context.Context, words []string, lang types.Language) (map[string]*Verdict, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrUnavailable
	}
	if len(words) == 0 {
		return map[string]*Verdict{}, nil
	}

	body, err := json.Marshal(validateRequest{Words: words, Language: string(lang)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/validate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ErrUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: oracle returned %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ErrUnavailable
	}
	if parsed.Results == nil {
		return nil, ErrUnavailable
	}
	return parsed.Results, nil
}
