package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
)

// Actuator performs fills and clicks against AI-suggested selectors. Selectors
// are guesses, so every action runs an ordered ladder of techniques and
// reports exhaustion as a plain false rather than an error.
type Actuator struct {
	driver PageDriver
	logger *zap.Logger

	// actionTimeout bounds each individual technique attempt.
	actionTimeout time.Duration
	// typeDelay is the per-character pace for simulated keyboard entry.
	typeDelay time.Duration
}

// NewActuator builds an actuator over the given page driver.
func NewActuator(driver PageDriver, logger *zap.Logger, actionTimeout time.Duration) *Actuator {
	if actionTimeout <= 0 {
		actionTimeout = 3 * time.Second
	}
	return &Actuator{
		driver:        driver,
		logger:        logger.Named("actuator"),
		actionTimeout: actionTimeout,
		typeDelay:     50 * time.Millisecond,
	}
}

type fillStrategy struct {
	technique schemas.Technique
	attempt   func(ctx context.Context, selector, value string) error
}

type clickStrategy struct {
	technique schemas.Technique
	attempt   func(ctx context.Context, selector string) error
}

// Fill writes value into the element, escalating through native fill with
// readback verification, simulated keyboard entry, and finally DOM injection
// with synthetic events. Returns whether any technique landed, plus the
// per-technique trace.
func (a *Actuator) Fill(ctx context.Context, selector, value string) (bool, []schemas.ActionOutcome) {
	strategies := []fillStrategy{
		{schemas.TechniqueNative, a.fillNative},
		{schemas.TechniqueSimulated, a.fillSimulated},
		{schemas.TechniqueDOMInjection, a.fillInjection},
	}

	var outcomes []schemas.ActionOutcome
	for _, s := range strategies {
		err := a.withTimeout(ctx, func(attemptCtx context.Context) error {
			return s.attempt(attemptCtx, selector, value)
		})
		outcomes = append(outcomes, schemas.ActionOutcome{Technique: s.technique, Succeeded: err == nil})
		if err == nil {
			a.logger.Debug("Fill succeeded.",
				zap.String("selector", selector),
				zap.String("technique", string(s.technique)))
			return true, outcomes
		}
		if ctx.Err() != nil {
			return false, outcomes
		}
		a.logger.Debug("Fill technique failed, escalating.",
			zap.String("selector", selector),
			zap.String("technique", string(s.technique)),
			zap.Error(err))
	}

	a.logger.Warn("All fill techniques exhausted.", zap.String("selector", selector))
	return false, outcomes
}

// Click escalates through a native click and a JS dispatch. Selectors the
// engine cannot parse fail cleanly into the next stage.
func (a *Actuator) Click(ctx context.Context, selector string) (bool, []schemas.ActionOutcome) {
	strategies := []clickStrategy{
		{schemas.TechniqueNative, a.clickNative},
		{schemas.TechniqueDOMInjection, a.clickInjection},
	}

	var outcomes []schemas.ActionOutcome
	for _, s := range strategies {
		err := a.withTimeout(ctx, func(attemptCtx context.Context) error {
			return s.attempt(attemptCtx, selector)
		})
		outcomes = append(outcomes, schemas.ActionOutcome{Technique: s.technique, Succeeded: err == nil})
		if err == nil {
			a.logger.Debug("Click succeeded.",
				zap.String("selector", selector),
				zap.String("technique", string(s.technique)))
			return true, outcomes
		}
		if ctx.Err() != nil {
			return false, outcomes
		}
		a.logger.Debug("Click technique failed, escalating.",
			zap.String("selector", selector),
			zap.String("technique", string(s.technique)),
			zap.Error(err))
	}

	a.logger.Warn("All click techniques exhausted.", zap.String("selector", selector))
	return false, outcomes
}

func (a *Actuator) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, a.actionTimeout)
	defer cancel()
	return fn(attemptCtx)
}

// fillNative sets the value through the driver and reads it back. A write the
// page silently rejected counts as a failure.
func (a *Actuator) fillNative(ctx context.Context, selector, value string) error {
	if err := a.driver.SetValue(ctx, selector, value); err != nil {
		return err
	}
	actual, err := a.driver.Value(ctx, selector)
	if err != nil {
		return fmt.Errorf("readback failed: %w", err)
	}
	if actual != value {
		return fmt.Errorf("readback mismatch: element holds %d chars, wanted %d", len(actual), len(value))
	}
	return nil
}

// fillSimulated clicks into the field and types character by character.
// Frameworks that ignore programmatic value writes usually accept this.
func (a *Actuator) fillSimulated(ctx context.Context, selector, value string) error {
	if err := a.driver.Click(ctx, selector); err != nil {
		return err
	}
	return a.driver.TypeText(ctx, value, a.typeDelay)
}

// fillInjection writes .value directly and dispatches bubbling input/change
// events so reactive frameworks observe the mutation.
func (a *Actuator) fillInjection(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return false; }
		el.value = %s;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, jsString(selector), jsString(value))

	var ok bool
	if err := a.driver.Evaluate(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no element matched %q", selector)
	}
	return nil
}

func (a *Actuator) clickNative(ctx context.Context, selector string) error {
	return a.driver.Click(ctx, selector)
}

func (a *Actuator) clickInjection(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return false; }
		el.click();
		return true;
	})()`, jsString(selector))

	var ok bool
	if err := a.driver.Evaluate(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no element matched %q", selector)
	}
	return nil
}

// jsString quotes a Go string as a JS string literal. Selectors and values
// originate from model output and operator input, so they are never trusted
// to be interpolation-safe.
func jsString(s string) string {
	return fmt.Sprintf("%q", s)
}
