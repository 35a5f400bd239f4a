package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
	"github.com/seleknir/webrecorder/internal/config"
)

// PageAnalyzer turns a screenshot into an affordance map. A nil analysis with
// a nil error means the analyzer could not produce one this cycle; the caller
// retries.
type PageAnalyzer interface {
	AnalyzePage(ctx context.Context, screenshot []byte) (*schemas.PageAnalysis, error)
}

// submitKeywords is the label vocabulary for the brute-force button search,
// tried in order.
var submitKeywords = []string{
	"Log in", "Log In", "Sign in", "Sign In",
	"Next", "next", "NEXT",
	"Continue", "continue", "CONTINUE",
	"Login", "login", "LOGIN",
	"Submit", "submit", "SUBMIT",
}

// LoginFlow drives the analyze-act loop that gets a human logged in. The
// analyzer proposes selectors, the operator supplies secrets, and the
// actuator absorbs selector failures.
type LoginFlow struct {
	driver   PageDriver
	actuator *Actuator
	otp      *OTPHandler
	analyzer PageAnalyzer
	operator Operator
	logger   *zap.Logger
	cfg      config.LoginConfig
}

// NewLoginFlow wires the login state machine.
func NewLoginFlow(driver PageDriver, actuator *Actuator, otp *OTPHandler, analyzer PageAnalyzer, operator Operator, logger *zap.Logger, cfg config.LoginConfig) *LoginFlow {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 10
	}
	return &LoginFlow{
		driver:   driver,
		actuator: actuator,
		otp:      otp,
		analyzer: analyzer,
		operator: operator,
		logger:   logger.Named("login"),
		cfg:      cfg,
	}
}

// Run iterates analyze-act cycles until the analyzer declares the page logged
// in or the cycle budget runs out. Exhaustion is a false return, never an
// error; only context cancellation aborts with one.
func (f *LoginFlow) Run(ctx context.Context) (bool, error) {
	f.logger.Info("Starting smart login sequence.", zap.Int("max_steps", f.cfg.MaxSteps))

	for step := 1; step <= f.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		f.logger.Info("Analyzing page.", zap.Int("step", step))
		if err := f.sleep(ctx, f.cfg.SettleWait); err != nil {
			return false, err
		}

		analysis := f.analyze(ctx)
		if analysis == nil {
			f.logger.Warn("Page analysis failed, retrying.")
			continue
		}
		f.logger.Info("Analysis complete.", zap.String("status", analysis.StepDescription))

		if analysis.IsLoggedIn {
			f.logger.Info("Login confirmed by analyzer.")
			return true, nil
		}

		// Consent banners obscure the form underneath; clear them and
		// re-analyze before touching anything else.
		if analysis.CookieButtonSelector != "" {
			f.logger.Info("Dismissing cookie consent banner.",
				zap.String("selector", analysis.CookieButtonSelector))
			if ok, _ := f.actuator.Click(ctx, analysis.CookieButtonSelector); ok {
				if err := f.sleep(ctx, 1*time.Second); err != nil {
					return false, err
				}
				continue
			}
		}

		interacted := f.actCycle(ctx, analysis)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if !interacted {
			f.logger.Info("No affordance acted on. Waiting before re-analysis.")
			if err := f.sleep(ctx, f.cfg.StuckWait); err != nil {
				return false, err
			}
		}
	}

	f.logger.Warn("Login step budget exhausted without confirmation.")
	return false, nil
}

func (f *LoginFlow) analyze(ctx context.Context) *schemas.PageAnalysis {
	screenshot, err := f.driver.Screenshot(ctx)
	if err != nil {
		f.logger.Warn("Screenshot failed.", zap.Error(err))
		return nil
	}
	analysis, err := f.analyzer.AnalyzePage(ctx, screenshot)
	if err != nil {
		f.logger.Warn("Analyzer error.", zap.Error(err))
		return nil
	}
	return analysis
}

// actCycle fills whatever fields the analysis exposed and decides whether to
// submit. Returns whether anything was attempted.
func (f *LoginFlow) actCycle(ctx context.Context, analysis *schemas.PageAnalysis) bool {
	interacted := false
	successfulFills := 0
	failedFills := 0

	if analysis.EmailSelector != "" {
		email, err := f.operator.Prompt("Email field detected. Enter your email (empty to skip)")
		if err == nil && email != "" {
			interacted = true
			if ok, _ := f.actuator.Fill(ctx, analysis.EmailSelector, email); ok {
				successfulFills++
			} else {
				failedFills++
			}
		}
	}

	if analysis.PasswordSelector != "" {
		pwd, err := f.operator.PromptSecret("Password field detected. Enter your password (empty to skip)")
		if err == nil && pwd != "" {
			interacted = true
			if ok, _ := f.actuator.Fill(ctx, analysis.PasswordSelector, pwd); ok {
				successfulFills++
			} else {
				failedFills++
			}
		}
	}

	if analysis.OTPSelector != "" {
		code, err := f.operator.Prompt("2FA code field detected. Enter your code (empty to skip)")
		if err == nil && code != "" {
			interacted = true
			if ok, _ := f.otp.Submit(ctx, analysis.OTPSelector, code); ok {
				successfulFills++
			} else {
				failedFills++
			}
		}
	}

	// Submitting after every fill failed would advance the form with empty
	// fields; anything else is worth a click.
	shouldClick := !(failedFills > 0 && successfulFills == 0)
	if !shouldClick {
		f.logger.Info("Skipping submit: all fills failed this cycle.")
		return interacted
	}

	clicked := false
	if analysis.PrimaryActionSelector != "" {
		f.logger.Info("Clicking primary action button.",
			zap.String("selector", analysis.PrimaryActionSelector))
		if ok, _ := f.actuator.Click(ctx, analysis.PrimaryActionSelector); ok {
			interacted = true
			clicked = true
			f.settleAfterSubmit(ctx)
		}
	}

	if !clicked {
		if f.bruteForceSubmit(ctx) {
			interacted = true
			f.settleAfterSubmit(ctx)
		}
	}

	return interacted
}

func (f *LoginFlow) settleAfterSubmit(ctx context.Context) {
	idleCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := f.driver.WaitIdle(idleCtx, 500*time.Millisecond); err != nil {
		f.logger.Debug("Post-submit stabilization incomplete.", zap.Error(err))
	}
}

// bruteForceSubmit hunts for a submit affordance by label when the analyzer's
// suggestion is missing or dead. Two passes per keyword: buttons whose text is
// exactly the label, then links, submit inputs, and buttons merely containing
// it. Headings like "Log in to continue" are excluded by restricting the
// partial pass to interactive elements.
func (f *LoginFlow) bruteForceSubmit(ctx context.Context) bool {
	f.logger.Info("Analyzer gave no usable submit button. Searching by label.")

	for _, kw := range submitKeywords {
		script := fmt.Sprintf(`(() => {
			const kw = %s;
			const visible = el => {
				const r = el.getBoundingClientRect();
				return r.width > 0 && r.height > 0;
			};
			const exact = Array.from(document.querySelectorAll('button, [role="button"]'))
				.find(el => el.textContent.trim() === kw && visible(el));
			if (exact) { exact.click(); return true; }
			const partial = Array.from(document.querySelectorAll('a, button, input[type="submit"], input[type="button"]'))
				.find(el => ((el.value || el.textContent || '').includes(kw)) && visible(el));
			if (partial) { partial.click(); return true; }
			return false;
		})()`, jsString(kw))

		var clicked bool
		if err := f.driver.Evaluate(ctx, script, &clicked); err != nil {
			f.logger.Debug("Label search attempt failed.", zap.String("keyword", kw), zap.Error(err))
			continue
		}
		if clicked {
			f.logger.Info("Label search clicked a submit element.", zap.String("keyword", kw))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

func (f *LoginFlow) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
