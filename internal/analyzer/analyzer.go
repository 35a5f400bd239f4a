// Package analyzer turns model output into the structured documents the
// pipeline consumes: affordance maps for login pages and purpose
// classifications for captured network events.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
	"github.com/seleknir/webrecorder/internal/config"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Provider is a page analyzer and event classifier in one. The login flow
// consumes the first half, the enrichment pass the second.
type Provider interface {
	AnalyzePage(ctx context.Context, screenshot []byte) (*schemas.PageAnalysis, error)
	Classify(ctx context.Context, ev schemas.NetworkEvent) (*schemas.AIContext, error)
}

// New selects the provider configured in analyzer.provider. The heuristic
// provider needs no credentials and is the default.
func New(cfg config.AnalyzerConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiAnalyzer(cfg, logger)
	case "", "heuristic":
		return NewHeuristicAnalyzer(logger), nil
	default:
		return nil, fmt.Errorf("unknown analyzer provider %q", cfg.Provider)
	}
}

// decodeJSONBlock unmarshals a model response that may be wrapped in a
// markdown code fence. Models fence their JSON more often than not.
func decodeJSONBlock(raw string, out interface{}) error {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	if err := jsonAPI.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	return nil
}
