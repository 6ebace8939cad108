// Package extractor provides a client for the Stage 1 PDF extraction service,
// which returns page text, layout regions and detected tables.
package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/resilience"
)

// Error codes returned by the extraction service.
const (
	CodeEncryptedPDF  = "ENCRYPTED_PDF"
	CodeCorruptedPDF  = "CORRUPTED_PDF"
	CodeMissingInput  = "MISSING_INPUT"
	CodeInvalidBase64 = "INVALID_BASE64"
	CodeUnknown       = "UNKNOWN_ERROR"
)

// permanentCodes are input defects that no retry can fix.
var permanentCodes = map[string]bool{
	CodeEncryptedPDF:  true,
	CodeCorruptedPDF:  true,
	CodeMissingInput:  true,
	CodeInvalidBase64: true,
}

// Client extracts Stage 1 output from PDF bytes.
type Client interface {
	Extract(ctx context.Context, req Request) (*model.Stage1Output, error)
}

// Request is one document to extract.
type Request struct {
	DocumentID string
	Filename   string
	PDF        []byte
}

type wireRequest struct {
	PDFBase64  string `json:"pdf_base64"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename,omitempty"`
}

type wireResponse struct {
	Success bool                `json:"success"`
	Data    *model.Stage1Output `json:"data,omitempty"`
	Error   *wireError          `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Option configures the extractor client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles requests to rps per second. Zero disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an extraction client for the service at baseURL.
// Requests are throttled to 2 req/s by default.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(2, 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract posts the PDF and returns the Stage 1 output. Errors are classified
// as resilience.PermanentError (input defects, rejected requests) or
// resilience.TransientError (5xx, 429, network) so callers can decide on
// retries; a cancelled context is returned as is.
func (c *httpClient) Extract(ctx context.Context, req Request) (*model.Stage1Output, error) {
	if len(req.PDF) == 0 {
		return nil, resilience.NewPermanentError(eris.New("extractor: empty pdf"), CodeMissingInput)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "extractor: rate limit")
		}
	}

	payload, err := json.Marshal(wireRequest{
		PDFBase64:  base64.StdEncoding.EncodeToString(req.PDF),
		DocumentID: req.DocumentID,
		Filename:   req.Filename,
	})
	if err != nil {
		return nil, eris.Wrap(err, "extractor: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract_pdf", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "extractor: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "extractor: request cancelled")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "extractor: request failed"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "extractor: read response body"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	var out wireResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "extractor: decode response"), resp.StatusCode)
	}
	if !out.Success || out.Data == nil {
		return nil, codeError(out.Error)
	}

	data := out.Data
	if data.DocumentID == "" {
		data.DocumentID = req.DocumentID
	}
	if data.Filename == "" {
		data.Filename = req.Filename
	}
	return data, nil
}

func statusError(status int, body []byte) error {
	// The service reports input defects as 4xx with an error body.
	var out wireResponse
	if json.Unmarshal(body, &out) == nil && out.Error != nil && permanentCodes[out.Error.Code] {
		return codeError(out.Error)
	}
	err := eris.Errorf("extractor: unexpected status %d: %s", status, truncate(string(body), 200))
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return resilience.NewPermanentError(err, "")
}

func codeError(e *wireError) error {
	if e == nil {
		return resilience.NewTransientError(eris.New("extractor: unsuccessful response without error"), 0)
	}
	err := eris.Errorf("extractor: %s: %s", e.Code, e.Message)
	if permanentCodes[e.Code] {
		return resilience.NewPermanentError(err, e.Code)
	}
	return resilience.NewTransientError(err, 0)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
