package core

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRAGEndpoint = "http://127.0.0.1:8000/ask"
	DefaultRAGTimeout  = 60 * time.Second

	// maxRAGErrorBody caps how much of a failed response is kept for logs.
	maxRAGErrorBody = 512
)

// RAGClient asks the remote knowledge-base service a single question.
type RAGClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewRAGClient returns a client for endpoint. A nil httpClient gets one with
// DefaultRAGTimeout.
func NewRAGClient(endpoint string, httpClient *http.Client) *RAGClient {
	if endpoint == "" {
		endpoint = DefaultRAGEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRAGTimeout}
	}
	return &RAGClient{endpoint: endpoint, httpClient: httpClient}
}

type ragRequest struct {
	Query string `json:"query"`
}

type ragResponse struct {
	Answer string `json:"answer"`
}

func (c *RAGClient) Ask(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(ragRequest{Query: query})
	if err != nil {
		return "", &StatusError{Kind: ErrDomainBackend, Err: errors.Wrap(err, "failed to encode query")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &StatusError{Kind: ErrDomainBackend, Err: errors.Wrap(err, "failed to build request")}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("endpoint", c.endpoint).Msg("RAG request failed")
		return "", &StatusError{Kind: ErrDomainBackend, Err: err}
	}
	defer resp.Body.Close()

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("RAG response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxRAGErrorBody))
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", strings.TrimSpace(string(snippet))).
			Msg("RAG service answered with an error status")
		return "", &StatusError{
			Kind:       ErrDomainBackend,
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("unexpected status %s", resp.Status),
		}
	}

	var out ragResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &StatusError{Kind: ErrDomainBackend, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "failed to decode answer")}
	}
	if strings.TrimSpace(out.Answer) == "" {
		return "", &StatusError{Kind: ErrDomainBackend, StatusCode: resp.StatusCode, Err: errors.New("empty answer")}
	}
	return out.Answer, nil
}
