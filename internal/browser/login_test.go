package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
	"github.com/seleknir/webrecorder/internal/config"
)

// fakeAnalyzer replays a fixed sequence of analyses, sticking on the last.
type fakeAnalyzer struct {
	mu    sync.Mutex
	seq   []*schemas.PageAnalysis
	err   error
	calls int
}

func (a *fakeAnalyzer) AnalyzePage(ctx context.Context, screenshot []byte) (*schemas.PageAnalysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	idx := a.calls - 1
	if idx >= len(a.seq) {
		idx = len(a.seq) - 1
	}
	return a.seq[idx], nil
}

func newTestFlow(page *fakePage, analyzer PageAnalyzer, op *fakeOperator, maxSteps int) *LoginFlow {
	logger := zap.NewNop()
	act := NewActuator(page, logger, time.Second)
	otp := NewOTPHandler(page, op, logger)
	otp.copyToClipboard = func(string) error { return nil }
	otp.settle = 0
	return NewLoginFlow(page, act, otp, analyzer, op, logger, config.LoginConfig{
		MaxSteps:   maxSteps,
		SettleWait: 0,
		StuckWait:  0,
	})
}

func TestLoginFullSequence(t *testing.T) {
	page := newFakePage()
	analyzer := &fakeAnalyzer{seq: []*schemas.PageAnalysis{
		{CookieButtonSelector: "#accept", StepDescription: "consent wall"},
		{
			EmailSelector:         "#email",
			PasswordSelector:      "#pwd",
			PrimaryActionSelector: "#submit",
			StepDescription:       "credential form",
		},
		{IsLoggedIn: true, StepDescription: "dashboard"},
	}}
	op := &fakeOperator{answers: []string{"user@example.com"}, secrets: []string{"hunter2"}}

	ok, err := newTestFlow(page, analyzer, op, 10).Run(context.Background())

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, analyzer.calls)

	log := page.callLog()
	assert.Contains(t, log, "click:#accept")
	assert.Contains(t, log, "setvalue:#email")
	assert.Contains(t, log, "setvalue:#pwd")
	assert.Contains(t, log, "click:#submit")
	assert.Equal(t, "user@example.com", page.values["#email"])
	assert.Equal(t, "hunter2", page.values["#pwd"])
}

func TestLoginSkipsSubmitWhenAllFillsFail(t *testing.T) {
	page := newFakePage()
	page.setValueFn = func(selector, value string) error { return errors.New("rejected") }
	page.clickFn = func(selector string) error {
		if selector == "#email" {
			return errors.New("rejected")
		}
		page.record("clicked:" + selector)
		return nil
	}
	page.evaluateFn = func(script string, out interface{}) error {
		if b, ok := out.(*bool); ok {
			*b = false
		}
		return nil
	}
	analyzer := &fakeAnalyzer{seq: []*schemas.PageAnalysis{
		{EmailSelector: "#email", PrimaryActionSelector: "#go"},
	}}
	op := &fakeOperator{answers: []string{"user@example.com"}}

	ok, err := newTestFlow(page, analyzer, op, 1).Run(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotContains(t, page.callLog(), "clicked:#go")
}

func TestLoginBruteForceSubmitByLabel(t *testing.T) {
	page := newFakePage()
	var scripts []string
	page.evaluateFn = func(script string, out interface{}) error {
		scripts = append(scripts, script)
		if b, ok := out.(*bool); ok {
			*b = strings.Contains(script, `"Sign in"`)
		}
		return nil
	}
	analyzer := &fakeAnalyzer{seq: []*schemas.PageAnalysis{
		{StepDescription: "interstitial with only a sign-in link"},
		{IsLoggedIn: true},
	}}

	ok, err := newTestFlow(page, analyzer, &fakeOperator{}, 5).Run(context.Background())

	require.NoError(t, err)
	require.True(t, ok)
	// Keywords are tried in order; "Sign in" is reached only after the
	// "Log in" variants miss.
	require.GreaterOrEqual(t, len(scripts), 3)
	assert.Contains(t, scripts[0], `"Log in"`)
	assert.Contains(t, scripts[2], `"Sign in"`)
}

func TestLoginExhaustionIsFalseNotError(t *testing.T) {
	page := newFakePage()
	analyzer := &fakeAnalyzer{err: errors.New("model unavailable")}

	ok, err := newTestFlow(page, analyzer, &fakeOperator{}, 3).Run(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, analyzer.calls)
}

func TestLoginHonorsCancellation(t *testing.T) {
	page := newFakePage()
	ctx, cancel := context.WithCancel(context.Background())
	page.screenshotFn = func() ([]byte, error) {
		cancel()
		return []byte("png"), nil
	}
	analyzer := &fakeAnalyzer{seq: []*schemas.PageAnalysis{{}}}

	ok, err := newTestFlow(page, analyzer, &fakeOperator{}, 10).Run(ctx)

	assert.False(t, ok)
	require.ErrorIs(t, err, context.Canceled)
}
