package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
	"github.com/seleknir/webrecorder/internal/config"
)

const pageAnalysisPrompt = `You are looking at a screenshot of a web page during a login flow.
Identify the interactive elements and return ONLY a JSON object:
{
  "email_selector": "CSS selector for the email/username input, or empty string",
  "password_selector": "CSS selector for the password input, or empty string",
  "otp_selector": "CSS selector for a 2FA/OTP code input, or empty string",
  "primary_action_button_selector": "CSS selector for the main submit/next button, or empty string",
  "cookie_button_selector": "CSS selector for an accept-cookies button, or empty string",
  "is_logged_in": true if the page shows a logged-in application rather than a login form,
  "step_description": "one short sentence describing the current step"
}
Selectors must be plain CSS (no jQuery extensions like :contains).`

// classifyPromptFormat mirrors what the pipeline wants from each captured
// request: one sentence of purpose plus a coarse category.
const classifyPromptFormat = `Analyze this API request and explain its PURPOSE in 1 short sentence.
Focus on what USER ACTION or DATA this relates to.

Method: %s
URL: %s
Post Data: %s

Return ONLY a JSON object:
{"purpose": "Brief description of what this does", "category": "read|write|auth|analytics|other", "useful_for_tool": boolean}`

// -- Gemini API wire structures --

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
}

type geminiRequestPayload struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// GeminiAnalyzer analyzes screenshots and classifies events via the Gemini
// REST API. Safe for concurrent use; the enrichment pool calls Classify from
// many goroutines.
type GeminiAnalyzer struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Provider = (*GeminiAnalyzer)(nil)

// NewGeminiAnalyzer builds the client. The API key is required; the endpoint
// is derived from the model name unless overridden.
func NewGeminiAnalyzer(cfg config.AnalyzerConfig, logger *zap.Logger) (*GeminiAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GeminiAnalyzer{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("analyzer.gemini"),
	}, nil
}

// AnalyzePage sends the screenshot with the affordance prompt and parses the
// resulting map.
func (g *GeminiAnalyzer) AnalyzePage(ctx context.Context, screenshot []byte) (*schemas.PageAnalysis, error) {
	parts := []geminiPart{
		{Text: pageAnalysisPrompt},
		{InlineData: &geminiInlineData{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(screenshot),
		}},
	}

	raw, err := g.generate(ctx, parts)
	if err != nil {
		return nil, fmt.Errorf("page analysis failed: %w", err)
	}

	var analysis schemas.PageAnalysis
	if err := decodeJSONBlock(raw, &analysis); err != nil {
		return nil, fmt.Errorf("page analysis failed: %w", err)
	}
	return &analysis, nil
}

// Classify asks for purpose/category context on one captured event. Post
// bodies are truncated; the model needs the shape, not the payload.
func (g *GeminiAnalyzer) Classify(ctx context.Context, ev schemas.NetworkEvent) (*schemas.AIContext, error) {
	postData := ev.PostData
	if len(postData) > 500 {
		postData = postData[:500]
	}
	if postData == "" {
		postData = "None"
	}

	prompt := fmt.Sprintf(classifyPromptFormat, ev.Method, ev.URL, postData)
	raw, err := g.generate(ctx, []geminiPart{{Text: prompt}})
	if err != nil {
		return nil, fmt.Errorf("event classification failed: %w", err)
	}

	var aiCtx schemas.AIContext
	if err := decodeJSONBlock(raw, &aiCtx); err != nil {
		return nil, fmt.Errorf("event classification failed: %w", err)
	}
	return &aiCtx, nil
}

// generate performs one generateContent call with retries on transient
// failures.
func (g *GeminiAnalyzer) generate(ctx context.Context, parts []geminiPart) (string, error) {
	payload := geminiRequestPayload{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      0.1,
			ResponseMimeType: "application/json",
		},
	}

	body, err := jsonAPI.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var responseContent string
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := g.httpClient.Do(httpReq)
		if err != nil {
			g.logger.Warn("Network error during analyzer request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return g.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload geminiResponsePayload
		if err := jsonAPI.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(responsePayload.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}

		candidate := responsePayload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
		}

		responseContent = candidate.Content.Parts[0].Text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

func (g *GeminiAnalyzer) handleAPIError(statusCode int, body []byte) error {
	g.logger.Error("Gemini API returned error status",
		zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("gemini API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // Transient, retry.
	default:
		return backoff.Permanent(err)
	}
}
