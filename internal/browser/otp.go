package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
)

// otpSettle is how long a stage waits before probing whether the code landed.
const otpSettle = 1 * time.Second

// OTPHandler enters a one-time code through an escalating ladder. Split-digit
// widgets, paste interception, and plain inputs all need different entry
// paths, so each stage is probed for success before escalating. The operator
// is the terminal fallback.
type OTPHandler struct {
	driver   PageDriver
	operator Operator
	logger   *zap.Logger

	// copyToClipboard is swappable for tests; hosts without a clipboard
	// degrade to the typed stages.
	copyToClipboard func(text string) error
	// settle is the pause before each success probe.
	settle time.Duration
}

// NewOTPHandler builds an OTP handler. operator may not be nil; the final
// stage blocks on it.
func NewOTPHandler(driver PageDriver, operator Operator, logger *zap.Logger) *OTPHandler {
	return &OTPHandler{
		driver:          driver,
		operator:        operator,
		logger:          logger.Named("otp"),
		copyToClipboard: clipboard.WriteAll,
		settle:          otpSettle,
	}
}

// Submit enters code into the page. The selector is advisory; when the
// analyzer found none, the first visible input is targeted. Submit returns
// true when a probe confirms entry or the operator confirms a manual one,
// and false only when the operator gives up too.
func (h *OTPHandler) Submit(ctx context.Context, selector, code string) (bool, []schemas.ActionOutcome) {
	var outcomes []schemas.ActionOutcome
	record := func(t schemas.Technique, ok bool) {
		outcomes = append(outcomes, schemas.ActionOutcome{Technique: t, Succeeded: ok})
	}

	h.logger.Info("Entering OTP.", zap.Int("code_length", len(code)))

	// Stage 1: load the clipboard and paste without targeting anything.
	// Split-digit widgets usually listen for paste at the document level.
	if err := h.copyToClipboard(code); err != nil {
		h.logger.Debug("Clipboard unavailable, skipping paste stages.", zap.Error(err))
		record(schemas.TechniqueGlobalPaste, false)
		record(schemas.TechniqueFocusPaste, false)
	} else {
		if ok := h.globalPaste(ctx, code); ok {
			record(schemas.TechniqueGlobalPaste, true)
			return true, outcomes
		}
		record(schemas.TechniqueGlobalPaste, false)
		if ctx.Err() != nil {
			return false, outcomes
		}

		// Stage 2: focus the input, then paste.
		if ok := h.focusPaste(ctx, h.targetSelector(selector), code); ok {
			record(schemas.TechniqueFocusPaste, true)
			return true, outcomes
		}
		record(schemas.TechniqueFocusPaste, false)
	}
	if ctx.Err() != nil {
		return false, outcomes
	}

	// Stage 3: focus and type character by character.
	if ok := h.focusType(ctx, h.targetSelector(selector), code); ok {
		record(schemas.TechniqueFocusType, true)
		return true, outcomes
	}
	record(schemas.TechniqueFocusType, false)
	if ctx.Err() != nil {
		return false, outcomes
	}

	// Stage 4: hand over to the human.
	h.logger.Warn("Automated OTP entry exhausted, asking the operator.")
	err := h.operator.Confirm(fmt.Sprintf(
		"Automatic entry failed. Enter the code %q manually in the browser window, then confirm", code))
	record(schemas.TechniqueOperator, err == nil)
	return err == nil, outcomes
}

func (h *OTPHandler) targetSelector(selector string) string {
	if selector == "" {
		return "input"
	}
	return selector
}

func (h *OTPHandler) globalPaste(ctx context.Context, code string) bool {
	var ignored bool
	if err := h.driver.Evaluate(ctx, "document.body.focus(); true", &ignored); err != nil {
		h.logger.Debug("Body focus failed.", zap.Error(err))
	}
	if err := h.driver.PressPaste(ctx); err != nil {
		h.logger.Debug("Global paste failed.", zap.Error(err))
		return false
	}
	return h.settleAndProbe(ctx, code)
}

func (h *OTPHandler) focusPaste(ctx context.Context, selector, code string) bool {
	if err := h.driver.Click(ctx, selector); err != nil {
		h.logger.Debug("Could not focus OTP input.", zap.String("selector", selector), zap.Error(err))
		return false
	}
	if err := h.driver.PressPaste(ctx); err != nil {
		h.logger.Debug("Focused paste failed.", zap.Error(err))
		return false
	}
	return h.settleAndProbe(ctx, code)
}

func (h *OTPHandler) focusType(ctx context.Context, selector, code string) bool {
	if err := h.driver.Click(ctx, selector); err != nil {
		h.logger.Debug("Could not focus OTP input.", zap.String("selector", selector), zap.Error(err))
		return false
	}
	if err := h.driver.TypeText(ctx, code, 100*time.Millisecond); err != nil {
		h.logger.Debug("Typed OTP entry failed.", zap.Error(err))
		return false
	}
	return h.settleAndProbe(ctx, code)
}

func (h *OTPHandler) settleAndProbe(ctx context.Context, code string) bool {
	select {
	case <-time.After(h.settle):
	case <-ctx.Done():
		return false
	}
	return h.probe(ctx, code)
}

// probe checks whether the code landed: either one input holds the full code,
// or a run of single-character inputs concatenates to it (split-digit
// widgets). The concatenation check avoids the false positive of matching a
// lone first digit.
func (h *OTPHandler) probe(ctx context.Context, code string) bool {
	script := fmt.Sprintf(`(() => {
		const code = %s;
		const inputs = Array.from(document.querySelectorAll('input'));
		if (inputs.some(el => el.value === code)) { return true; }
		const singles = inputs.filter(el => el.value.length === 1);
		return singles.length >= code.length &&
			singles.slice(0, code.length).map(el => el.value).join('') === code;
	})()`, jsString(code))

	var matched bool
	if err := h.driver.Evaluate(ctx, script, &matched); err != nil {
		h.logger.Debug("OTP probe failed.", zap.Error(err))
		return false
	}
	return matched
}
