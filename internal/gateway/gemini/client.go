// Package gemini implements the model gateway against the Google Gemini
// generateContent API over HTTP.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/firstday-app/firstday/internal/gateway"
)

const providerName = "gemini"

// Retry configuration
const (
	maxRetries   = 3
	baseDelay    = 1 * time.Second
	maxDelay     = 30 * time.Second
	jitterFactor = 0.2 // 20% jitter
)

// Client calls the Gemini API. Generation parameters are fixed at
// construction; the credential arrives per request because every session
// carries its own key.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	model           string
	maxOutputTokens int
	temperature     float64
	logger          *slog.Logger
}

// NewClient creates a client against the public Gemini endpoint.
func NewClient(logger *slog.Logger, model string, maxOutputTokens int, temperature float64) *Client {
	return NewClientWithBaseURL(logger, model, maxOutputTokens, temperature, "https://generativelanguage.googleapis.com/v1beta")
}

// NewClientWithBaseURL creates a client against a custom endpoint, used in tests.
func NewClientWithBaseURL(logger *slog.Logger, model string, maxOutputTokens int, temperature float64, baseURL string) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConnsPerHost: 10,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   120 * time.Second,
		},
		baseURL:         baseURL,
		model:           model,
		maxOutputTokens: maxOutputTokens,
		temperature:     temperature,
		logger:          logger.With("component", "gemini_client"),
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// isRetryableStatusCode returns true if the HTTP status code indicates a retryable error.
func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	default:
		return false
	}
}

// isRetryableError returns true for network/timeout errors worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// calculateBackoff returns the delay for the given attempt using exponential backoff with jitter.
func calculateBackoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}

	jitter := time.Duration(float64(delay) * jitterFactor * (2*rand.Float64() - 1))
	return delay + jitter
}

func (c *Client) buildRequest(req gateway.GenerateRequest) generateContentRequest {
	contents := make([]content, 0, len(req.History)+1)
	for _, turn := range req.History {
		contents = append(contents, content{
			Role:  turn.Role,
			Parts: []part{{Text: turn.Text}},
		})
	}
	// The rendered prompt is always the final user message.
	contents = append(contents, content{
		Role:  gateway.RoleUser,
		Parts: []part{{Text: req.Prompt}},
	})

	return generateContentRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			MaxOutputTokens: c.maxOutputTokens,
			Temperature:     c.temperature,
		},
	}
}

// Generate sends one generateContent call, retrying transient faults. It
// returns *gateway.Error for every failure mode.
func (c *Client) Generate(ctx context.Context, req gateway.GenerateRequest) (gateway.GenerateResult, error) {
	startTime := time.Now()

	if req.Credential == "" {
		return gateway.GenerateResult{}, gateway.WrapError("missing API credential", nil)
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return gateway.GenerateResult{}, gateway.WrapError("failed to encode request", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "models", c.model+":generateContent")
	if err != nil {
		return gateway.GenerateResult{}, gateway.WrapError("failed to build endpoint URL", err)
	}

	c.logger.Info("Sending request to Gemini",
		"model", c.model,
		"history_turns", len(req.History),
		"prompt_chars", len(req.Prompt),
	)

	var responseBody []byte
	var lastStatus string
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			gateway.RecordRetry(providerName, c.model)
			delay := calculateBackoff(attempt - 1)
			c.logger.Warn("Retrying Gemini request",
				"attempt", attempt,
				"max_retries", maxRetries,
				"delay", delay,
				"last_error", lastErr,
			)

			select {
			case <-ctx.Done():
				return c.fail(startTime, "request cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(body))
		if err != nil {
			return c.fail(startTime, "failed to build request", err)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", req.Credential)
		httpReq.Header.Set("User-Agent", "firstday/1.0")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return c.fail(startTime, "request cancelled", ctx.Err())
			}
			if isRetryableError(err) && attempt < maxRetries {
				lastErr = err
				continue
			}
			return c.fail(startTime, "network error talking to Gemini", err)
		}

		responseBody, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			if isRetryableError(err) && attempt < maxRetries {
				lastErr = err
				continue
			}
			return c.fail(startTime, "failed to read Gemini response", err)
		}

		c.logger.Debug("Gemini response received", "status", resp.Status, "attempt", attempt)

		if resp.StatusCode == http.StatusOK {
			lastStatus = resp.Status
			break
		}

		if isRetryableStatusCode(resp.StatusCode) && attempt < maxRetries {
			lastErr = fmt.Errorf("gemini API error: %s", resp.Status)
			continue
		}

		// Non-retryable or retries exhausted. Surface the API's own message
		// when the body carries one; it names the actual problem (bad key,
		// quota, unknown model).
		c.logger.Error("Gemini returned non-OK status", "status", resp.Status, "body_length", len(responseBody))
		msg := fmt.Sprintf("gemini API error: %s", resp.Status)
		var errResp generateContentResponse
		if json.Unmarshal(responseBody, &errResp) == nil && errResp.Error != nil && errResp.Error.Message != "" {
			msg = fmt.Sprintf("gemini API error: %s", errResp.Error.Message)
		}
		return c.fail(startTime, msg, nil)
	}

	var genResp generateContentResponse
	if err := json.Unmarshal(responseBody, &genResp); err != nil {
		c.logger.Error("Failed to decode Gemini response", "error", err, "body_length", len(responseBody))
		return c.fail(startTime, "malformed response from Gemini", err)
	}

	text := candidateText(genResp)
	if text == "" {
		c.logger.Error("Gemini response contains no text", "status", lastStatus, "candidates", len(genResp.Candidates))
		return c.fail(startTime, "empty response from Gemini", nil)
	}

	c.logger.Info("Gemini response parsed successfully",
		"model", c.model,
		"prompt_tokens", genResp.UsageMetadata.PromptTokenCount,
		"completion_tokens", genResp.UsageMetadata.CandidatesTokenCount,
		"total_tokens", genResp.UsageMetadata.TotalTokenCount,
	)

	gateway.RecordRequest(providerName, c.model, time.Since(startTime).Seconds(), true,
		genResp.UsageMetadata.PromptTokenCount, genResp.UsageMetadata.CandidatesTokenCount)

	return gateway.GenerateResult{
		Text:             text,
		Model:            c.model,
		PromptTokens:     genResp.UsageMetadata.PromptTokenCount,
		CompletionTokens: genResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

func (c *Client) fail(startTime time.Time, message string, err error) (gateway.GenerateResult, error) {
	gateway.RecordRequest(providerName, c.model, time.Since(startTime).Seconds(), false, 0, 0)
	return gateway.GenerateResult{}, gateway.WrapError(message, err)
}

func candidateText(resp generateContentResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	text := ""
	for _, p := range resp.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text
}
