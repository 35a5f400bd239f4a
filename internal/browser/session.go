package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
	"github.com/seleknir/webrecorder/internal/config"
)

// Session represents one recording tab. It implements PageDriver on top of
// chromedp and owns the tab's harvester.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	harvester *Harvester

	mu       sync.Mutex
	isClosed bool
}

var _ PageDriver = (*Session)(nil)

// NewSession creates a tab under the manager's allocator and starts its
// harvester.
func NewSession(allocCtx context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()

	tabCtx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		id:     sessionID,
		ctx:    tabCtx,
		cancel: cancel,
		logger: logger.With(zap.String("session_id", sessionID)),
		cfg:    cfg,
	}

	// Materialize the tab and attach CDP before anything else runs against it.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize browser tab: %w", err)
	}

	s.harvester = NewHarvester(tabCtx, s.logger, cfg.Network.Denylist)
	if err := s.harvester.Start(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start harvester: %w", err)
	}

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Harvester exposes the tab's capture pipeline.
func (s *Session) Harvester() *Harvester {
	return s.harvester
}

// Close tears down the tab.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return nil
	}
	s.isClosed = true

	s.logger.Debug("Closing browser session.")
	if s.harvester != nil {
		s.harvester.Stop()
	}
	s.cancel()
	return nil
}

// run executes chromedp actions bound to both the session lifetime and the
// caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// -- PageDriver implementation --

// Navigate loads the URL, waits for the DOM to be ready, and stabilizes on
// network idle. Stabilization failure is non-fatal.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating.", zap.String("url", url))

	navTimeout := s.cfg.Network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := s.run(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	if err := s.WaitIdle(ctx, s.cfg.Network.PostLoadWait); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("Stabilization after navigation was incomplete.", zap.Error(err))
	}
	return nil
}

// Screenshot captures the viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// SetValue is the native fill primitive.
func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	)
}

// Value reads the element's current value back.
func (s *Session) Value(ctx context.Context, selector string) (string, error) {
	var value string
	if err := s.run(ctx, chromedp.Value(selector, &value, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return value, nil
}

// Click is the native click primitive.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// Focus moves keyboard focus to the element.
func (s *Session) Focus(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Focus(selector, chromedp.ByQuery))
}

// TypeText emits key events for each character into the focused element at a
// deliberate pace, which satisfies frameworks that only react to genuine
// keyboard input.
func (s *Session) TypeText(ctx context.Context, text string, perKey time.Duration) error {
	for _, ch := range text {
		if err := s.run(ctx, chromedp.KeyEvent(string(ch))); err != nil {
			return err
		}
		if perKey > 0 {
			select {
			case <-time.After(perKey):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// PressPaste emits the Ctrl+V chord.
func (s *Session) PressPaste(ctx context.Context) error {
	return s.run(ctx, chromedp.KeyEvent("v", chromedp.KeyModifiers(input.ModifierCtrl)))
}

// Evaluate runs a script in page context.
func (s *Session) Evaluate(ctx context.Context, script string, out interface{}) error {
	return s.run(ctx, chromedp.Evaluate(script, out))
}

// WaitIdle delegates to the harvester's in-flight tracking.
func (s *Session) WaitIdle(ctx context.Context, quiet time.Duration) error {
	waitCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return s.harvester.WaitNetworkIdle(waitCtx, quiet)
}

// CurrentURL returns the page's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// -- Cookie plumbing --

// InjectCookies loads persisted cookies into the tab's browser context. The
// cookies must already have their url field stripped.
func (s *Session) InjectCookies(ctx context.Context, cookies []schemas.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &expires
		}
		params = append(params, p)
	}

	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return network.SetCookies(params).Do(c)
	}))
	if err != nil {
		return fmt.Errorf("failed to inject cookies: %w", err)
	}
	s.logger.Info("Injected cookies into browser context.", zap.Int("count", len(params)))
	return nil
}

// CaptureStorageState collects the tab's full cookie jar. SameSite values are
// raw browser values here; the session store normalizes them on persist.
func (s *Session) CaptureStorageState(ctx context.Context) (schemas.SessionState, error) {
	var state schemas.SessionState

	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		cookies, err := network.GetCookies().Do(c)
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			state.Cookies = append(state.Cookies, schemas.Cookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Expires:  ck.Expires,
				HTTPOnly: ck.HTTPOnly,
				Secure:   ck.Secure,
				SameSite: string(ck.SameSite),
			})
		}
		return nil
	}))
	if err != nil {
		return state, fmt.Errorf("failed to capture storage state: %w", err)
	}
	return state, nil
}

// CombineContext returns a context canceled when either parent is canceled.
// Browser operations must respect both the session lifetime and the specific
// operation deadline.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
