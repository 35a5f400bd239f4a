// Package recorder wires the acquisition pipeline end to end: session
// warm-start or smart login, capture, interaction, and the dedup/enrich
// post-processing that produces the durable event logs.
package recorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
	"github.com/seleknir/webrecorder/internal/browser"
	"github.com/seleknir/webrecorder/internal/config"
	"github.com/seleknir/webrecorder/internal/events"
	"github.com/seleknir/webrecorder/internal/sessionstore"
)

// highlightScript outlines everything clickable so the operator can see what
// the probe phase is about to touch.
const highlightScript = `(() => {
	const elements = document.querySelectorAll('button, a, [role="button"]');
	elements.forEach(el => el.style.border = '2px solid red');
	return elements.length;
})()`

// Session is the tab surface the recorder drives: page primitives plus the
// cookie plumbing of the concrete browser session.
type Session interface {
	browser.PageDriver
	InjectCookies(ctx context.Context, cookies []schemas.Cookie) error
	CaptureStorageState(ctx context.Context) (schemas.SessionState, error)
}

// Capturer is the recorder's view of the harvester.
type Capturer interface {
	Capture(on bool)
	Stop() []schemas.NetworkEvent
}

// LoginRunner runs the interactive login sequence.
type LoginRunner interface {
	Run(ctx context.Context) (bool, error)
}

// Recorder owns one recording run.
type Recorder struct {
	session    Session
	capture    Capturer
	login      LoginRunner
	store      *sessionstore.Store
	classifier events.Classifier
	logger     *zap.Logger
	cfg        *config.Config
}

// Deps collects the recorder's collaborators.
type Deps struct {
	Session    Session
	Capture    Capturer
	Login      LoginRunner
	Store      *sessionstore.Store
	Classifier events.Classifier
	Logger     *zap.Logger
	Config     *config.Config
}

// New builds a recorder from its dependencies.
func New(deps Deps) *Recorder {
	return &Recorder{
		session:    deps.Session,
		capture:    deps.Capture,
		login:      deps.Login,
		store:      deps.Store,
		classifier: deps.Classifier,
		logger:     deps.Logger.Named("recorder"),
		cfg:        deps.Config,
	}
}

// Run performs the full acquisition: authenticate (warm or fresh), capture
// traffic on the target, then write the raw, deduplicated, and enriched logs.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.authenticate(ctx); err != nil {
		return err
	}

	// Login traffic stays out of the log; capture starts with the target.
	r.capture.Capture(true)

	target := r.cfg.Output.TargetURL
	if err := r.session.Navigate(ctx, target); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("Target navigation error, continuing.", zap.Error(err))
	}

	r.interactionPhase(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	captured := r.capture.Stop()
	r.logger.Info("Capture complete.", zap.Int("events", len(captured)))

	if err := events.WriteLog(r.cfg.Output.EventsFile, captured); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	r.logger.Info("Raw event log written.", zap.String("path", r.cfg.Output.EventsFile))

	reduced := events.Reduce(captured)
	r.logger.Info("Deduplicated endpoints.",
		zap.Int("raw", len(captured)), zap.Int("unique", len(reduced)))

	enriched := events.Enrich(ctx, r.logger, reduced, r.classifier, r.cfg.Output.EnrichWorkers)
	enrichedPath := r.cfg.Output.EnrichedEventsFile()
	if err := events.WriteLog(enrichedPath, enriched); err != nil {
		return fmt.Errorf("failed to write enriched event log: %w", err)
	}
	r.logger.Info("Enriched event log written.", zap.String("path", enrichedPath))
	return nil
}

// authenticate establishes an identity for the run. A persisted session is
// injected as-is; otherwise the interactive login runs and, on success, the
// fresh session is persisted exactly once. Login failure degrades to a guest
// run rather than aborting.
func (r *Recorder) authenticate(ctx context.Context) error {
	if r.store.Exists() {
		r.logger.Info("Existing session found, warm-starting.", zap.String("path", r.store.Path()))
		cookies, err := r.store.DriverCookies()
		if err != nil {
			r.logger.Warn("Could not load persisted session, falling back to login.", zap.Error(err))
		} else {
			if err := r.session.InjectCookies(ctx, cookies); err != nil {
				r.logger.Warn("Cookie injection failed, continuing unauthenticated.", zap.Error(err))
			}
			return nil
		}
	}

	loginURL := r.cfg.Login.URL
	if err := r.session.Navigate(ctx, loginURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("Login page navigation error, continuing.", zap.Error(err))
	}

	ok, err := r.login.Run(ctx)
	if err != nil {
		return fmt.Errorf("login sequence aborted: %w", err)
	}
	if !ok {
		r.logger.Warn("Login did not complete. Continuing as guest; capture may be limited.")
		return nil
	}

	state, err := r.session.CaptureStorageState(ctx)
	if err != nil {
		r.logger.Warn("Could not capture session state; this run will not be resumable.", zap.Error(err))
		return nil
	}
	if err := r.store.Persist(state); err != nil {
		r.logger.Warn("Could not persist session state.", zap.Error(err))
		return nil
	}
	r.logger.Info("Session persisted.",
		zap.String("path", r.store.Path()), zap.Int("cookies", len(state.Cookies)))

	// Land on the target if login left us elsewhere.
	if current, err := r.session.CurrentURL(ctx); err == nil && !strings.Contains(current, r.cfg.Output.TargetURL) {
		if err := r.session.Navigate(ctx, r.cfg.Output.TargetURL); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// interactionPhase highlights the page's clickable elements and probes a
// bounded number of them to generate representative traffic. Every failure
// here is best-effort.
func (r *Recorder) interactionPhase(ctx context.Context) {
	r.logger.Info("Starting interaction phase.")

	var count int
	if err := r.session.Evaluate(ctx, highlightScript, &count); err != nil {
		r.logger.Debug("Highlighting failed.", zap.Error(err))
	} else {
		r.logger.Info("Highlighted interactable elements.", zap.Int("count", count))
	}

	maxProbes := r.cfg.Output.MaxProbes
	for i := 0; i < maxProbes; i++ {
		if ctx.Err() != nil {
			return
		}
		script := fmt.Sprintf(`(() => {
			const visible = el => {
				const rect = el.getBoundingClientRect();
				return rect.width > 0 && rect.height > 0;
			};
			const buttons = Array.from(document.querySelectorAll('button, [role="button"]')).filter(visible);
			if (buttons.length <= %d) { return false; }
			buttons[%d].click();
			return true;
		})()`, i, i)

		var clicked bool
		if err := r.session.Evaluate(ctx, script, &clicked); err != nil {
			r.logger.Debug("Probe click failed.", zap.Int("index", i), zap.Error(err))
			continue
		}
		if !clicked {
			break
		}
		r.logger.Debug("Probed element.", zap.Int("index", i))

		idleCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := r.session.WaitIdle(idleCtx, 1*time.Second); err != nil {
			r.logger.Debug("Probe settle incomplete.", zap.Error(err))
		}
		cancel()
	}
}
