package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
)

func newTestOTP(page *fakePage, op *fakeOperator) *OTPHandler {
	h := NewOTPHandler(page, op, zap.NewNop())
	h.copyToClipboard = func(string) error { return nil }
	h.settle = 0
	return h
}

// probeResponder scripts the success probe: Evaluate calls whose script
// mentions querySelectorAll('input') report matched, everything else true.
func probeResponder(matched *bool) func(script string, out interface{}) error {
	return func(script string, out interface{}) error {
		b, ok := out.(*bool)
		if !ok {
			return nil
		}
		if strings.Contains(script, "querySelectorAll('input')") {
			*b = *matched
			return nil
		}
		*b = true
		return nil
	}
}

func TestOTPGlobalPasteSucceeds(t *testing.T) {
	page := newFakePage()
	matched := false
	page.evaluateFn = probeResponder(&matched)
	page.pressPasteFn = func() error { matched = true; return nil }

	ok, outcomes := newTestOTP(page, &fakeOperator{}).Submit(context.Background(), "#otp", "123456")

	require.True(t, ok)
	require.Len(t, outcomes, 1)
	assert.Equal(t, schemas.TechniqueGlobalPaste, outcomes[0].Technique)
	assert.Contains(t, page.callLog(), "paste")
	// The global stage never targets the selector.
	assert.NotContains(t, page.callLog(), "click:#otp")
}

func TestOTPEscalatesToFocusPaste(t *testing.T) {
	page := newFakePage()
	matched := false
	page.evaluateFn = probeResponder(&matched)
	page.clickFn = func(selector string) error {
		// Pasting only lands once the input is focused.
		matched = true
		return nil
	}

	ok, outcomes := newTestOTP(page, &fakeOperator{}).Submit(context.Background(), "#otp", "123456")

	require.True(t, ok)
	require.Len(t, outcomes, 2)
	assert.Equal(t, schemas.TechniqueFocusPaste, outcomes[1].Technique)
	assert.Contains(t, page.callLog(), "click:#otp")
}

func TestOTPTypeStageUsedWhenPasteIsIntercepted(t *testing.T) {
	page := newFakePage()
	matched := false
	page.evaluateFn = probeResponder(&matched)
	page.typeTextFn = func(text string) error { matched = true; return nil }

	ok, outcomes := newTestOTP(page, &fakeOperator{}).Submit(context.Background(), "", "9137")

	require.True(t, ok)
	require.Len(t, outcomes, 3)
	assert.Equal(t, schemas.TechniqueFocusType, outcomes[2].Technique)
	// Empty selector falls back to the generic input.
	assert.Contains(t, page.callLog(), "click:input")
}

func TestOTPOperatorFallbackConfirmed(t *testing.T) {
	page := newFakePage()
	matched := false
	page.evaluateFn = probeResponder(&matched)
	op := &fakeOperator{}

	ok, outcomes := newTestOTP(page, op).Submit(context.Background(), "#otp", "000000")

	require.True(t, ok)
	require.Len(t, outcomes, 4)
	assert.Equal(t, schemas.TechniqueOperator, outcomes[3].Technique)
	require.Len(t, op.prompts, 1)
	assert.Contains(t, op.prompts[0], "000000")
}

func TestOTPOperatorDeclineFails(t *testing.T) {
	page := newFakePage()
	matched := false
	page.evaluateFn = probeResponder(&matched)
	op := &fakeOperator{confirmErr: errors.New("operator aborted")}

	ok, outcomes := newTestOTP(page, op).Submit(context.Background(), "#otp", "000000")

	assert.False(t, ok)
	assert.False(t, outcomes[len(outcomes)-1].Succeeded)
}

func TestOTPNoClipboardSkipsPasteStages(t *testing.T) {
	page := newFakePage()
	matched := false
	page.evaluateFn = probeResponder(&matched)
	page.typeTextFn = func(text string) error { matched = true; return nil }

	h := newTestOTP(page, &fakeOperator{})
	h.copyToClipboard = func(string) error { return errors.New("no display") }

	ok, outcomes := h.Submit(context.Background(), "#otp", "4242")

	require.True(t, ok)
	require.Len(t, outcomes, 3)
	assert.False(t, outcomes[0].Succeeded)
	assert.False(t, outcomes[1].Succeeded)
	assert.Equal(t, schemas.TechniqueFocusType, outcomes[2].Technique)
	assert.NotContains(t, page.callLog(), "paste")
}
