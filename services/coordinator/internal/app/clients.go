package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tabbacklog/internal/servicetoken"
	"tabbacklog/pkg/domain"
)

// ParserClient calls the parser service.
type ParserClient interface {
	FetchParse(ctx context.Context, rawURL, tabID string) (ParseResult, error)
}

// EnrichClient calls the enrichment service.
type EnrichClient interface {
	EnrichTab(ctx context.Context, req EnrichRequest) (EnrichResult, error)
}

// ParseResult mirrors the parser service response.
type ParseResult struct {
	Page        domain.ParsedPage `json:"page"`
	SnapshotKey string            `json:"snapshotKey,omitempty"`
}

// EnrichRequest mirrors the enrichment service request.
type EnrichRequest struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	SiteKind     string `json:"site_kind"`
	Text         string `json:"text,omitempty"`
	WordCount    int    `json:"word_count,omitempty"`
	VideoSeconds int    `json:"video_seconds,omitempty"`
}

// EnrichResult mirrors the enrichment service response.
type EnrichResult struct {
	URL        string            `json:"url"`
	Enrichment domain.Enrichment `json:"enrichment"`
	ModelName  string            `json:"model_name"`
	Attempts   int               `json:"attempts"`
}

// upstreamError is a non-2xx reply from a downstream service. The body is
// kept because the enrichment service returns the model's raw output there.
type upstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Body)
}

// HTTPParserClient talks to the parser service with internal JWT auth.
type HTTPParserClient struct {
	baseURL string
	signer  *servicetoken.Signer
	client  *http.Client
}

func NewHTTPParserClient(baseURL string, signer *servicetoken.Signer, timeout time.Duration) *HTTPParserClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPParserClient{
		baseURL: baseURL,
		signer:  signer,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPParserClient) FetchParse(ctx context.Context, rawURL, tabID string) (ParseResult, error) {
	var result ParseResult
	payload := map[string]string{"url": rawURL, "tabId": tabID}
	err := postJSON(ctx, c.client, c.signer, "parser", c.baseURL+"/fetch_parse", payload, &result)
	return result, err
}

// HTTPEnrichClient talks to the enrichment service with internal JWT auth.
type HTTPEnrichClient struct {
	baseURL string
	signer  *servicetoken.Signer
	client  *http.Client
}

func NewHTTPEnrichClient(baseURL string, signer *servicetoken.Signer, timeout time.Duration) *HTTPEnrichClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPEnrichClient{
		baseURL: baseURL,
		signer:  signer,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPEnrichClient) EnrichTab(ctx context.Context, req EnrichRequest) (EnrichResult, error) {
	var result EnrichResult
	err := postJSON(ctx, c.client, c.signer, "enrich", c.baseURL+"/enrich_tab", req, &result)
	return result, err
}

func postJSON(ctx context.Context, client *http.Client, signer *servicetoken.Signer, audience, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	token, err := signer.Sign(audience)
	if err != nil {
		return fmt.Errorf("sign service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", audience, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", audience, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &upstreamError{Service: audience, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", audience, err)
	}
	return nil
}
