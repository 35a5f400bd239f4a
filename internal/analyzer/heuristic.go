package analyzer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
)

// HeuristicAnalyzer is the no-credential fallback. It cannot see the page, so
// it proposes the selectors that match the overwhelming majority of login
// forms and classifies events by URL and method patterns.
type HeuristicAnalyzer struct {
	logger *zap.Logger
}

var _ Provider = (*HeuristicAnalyzer)(nil)

// NewHeuristicAnalyzer builds the rule-based provider.
func NewHeuristicAnalyzer(logger *zap.Logger) *HeuristicAnalyzer {
	return &HeuristicAnalyzer{logger: logger.Named("analyzer.heuristic")}
}

// AnalyzePage ignores the screenshot and returns the common-case selectors.
// It never reports is_logged_in, so the login flow runs until its step budget
// or the operator-visible browser shows success.
func (h *HeuristicAnalyzer) AnalyzePage(ctx context.Context, screenshot []byte) (*schemas.PageAnalysis, error) {
	h.logger.Debug("Heuristic provider: returning default login selectors.")
	return &schemas.PageAnalysis{
		EmailSelector:         "input[type='email'], input[name='email'], input[name='username']",
		PasswordSelector:      "input[type='password']",
		OTPSelector:           "input[type='text']",
		PrimaryActionSelector: "button[type='submit'], input[type='submit']",
		StepDescription:       "Default login selectors (no vision model configured)",
	}, nil
}

// Classify buckets the event without a model call. The categories carry less
// signal than model output but keep the enriched log shape identical.
func (h *HeuristicAnalyzer) Classify(ctx context.Context, ev schemas.NetworkEvent) (*schemas.AIContext, error) {
	lower := strings.ToLower(ev.URL)

	category := "other"
	switch {
	case containsAny(lower, "login", "logout", "session", "token", "auth", "sso"):
		category = "auth"
	case containsAny(lower, "analytics", "track", "telemetry", "metric"):
		category = "analytics"
	case ev.Method == "GET" || ev.Method == "HEAD":
		category = "read"
	case ev.Method == "POST" || ev.Method == "PUT" || ev.Method == "PATCH" || ev.Method == "DELETE":
		category = "write"
	}

	return &schemas.AIContext{
		Purpose:       ev.Method + " " + ev.URL,
		Category:      category,
		UsefulForTool: category == "read" || category == "write",
	}, nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
