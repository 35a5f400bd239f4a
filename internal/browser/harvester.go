package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
)

// requestState tracks the lifecycle of a single network request from
// will-be-sent through loading-finished.
type requestState struct {
	request      *network.Request
	resourceType network.ResourceType
	status       int64
}

// Harvester listens to the tab's CDP network events and turns completed
// programmatic exchanges into an ordered, append-only NetworkEvent log.
//
// The capture callback runs on chromedp's event goroutine; it only appends
// under the harvester's own lock and never blocks on page work, so capture
// can interleave freely with ongoing interaction.
type Harvester struct {
	logger   *zap.Logger
	denylist []string

	sessionCtx     context.Context
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	lock      sync.RWMutex
	requests  map[network.RequestID]*requestState
	inflight  map[network.RequestID]bool
	events    []schemas.NetworkEvent
	capturing bool
	isStarted bool
}

// NewHarvester creates a harvester bound to a tab context. Nothing is
// recorded until Start and then Capture(true) are called; WaitNetworkIdle
// works from Start onward.
func NewHarvester(sessionCtx context.Context, logger *zap.Logger, denylist []string) *Harvester {
	return &Harvester{
		sessionCtx: sessionCtx,
		logger:     logger.Named("harvester"),
		denylist:   denylist,
		requests:   make(map[network.RequestID]*requestState),
		inflight:   make(map[network.RequestID]bool),
	}
}

// Start enables the network domain and begins listening for events.
func (h *Harvester) Start(ctx context.Context) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.isStarted {
		return nil
	}

	// Derived from the session so the listener dies with the tab.
	h.listenerCtx, h.cancelListener = context.WithCancel(h.sessionCtx)

	chromedp.ListenTarget(h.listenerCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			h.handleRequestWillBeSent(e)
		case *network.EventResponseReceived:
			h.handleResponseReceived(e)
		case *network.EventLoadingFinished:
			h.handleLoadingFinished(e)
		case *network.EventLoadingFailed:
			h.handleLoadingFailed(e)
		}
	})

	if err := chromedp.Run(ctx, network.Enable(), runtime.Enable()); err != nil {
		h.cancelListener()
		return err
	}

	h.isStarted = true
	h.logger.Debug("Harvester started and listening for network events.")
	return nil
}

// Capture toggles event admission. Idle tracking always runs; the event log
// only grows while capturing, so the login phase does not pollute the log.
func (h *Harvester) Capture(on bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.capturing = on
}

// Stop halts listening and returns the captured log in completion order.
func (h *Harvester) Stop() []schemas.NetworkEvent {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.cancelListener != nil {
		h.cancelListener()
		h.cancelListener = nil
	}
	h.isStarted = false
	h.capturing = false

	events := make([]schemas.NetworkEvent, len(h.events))
	copy(events, h.events)
	return events
}

// Events returns a snapshot of the log so far.
func (h *Harvester) Events() []schemas.NetworkEvent {
	h.lock.RLock()
	defer h.lock.RUnlock()
	events := make([]schemas.NetworkEvent, len(h.events))
	copy(events, h.events)
	return events
}

// WaitNetworkIdle polls until no request has been in flight for quietPeriod.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	if quietPeriod <= 0 {
		quietPeriod = 500 * time.Millisecond
	}
	ticker := time.NewTicker(quietPeriod / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.lock.RLock()
			inflightCount := len(h.inflight)
			h.lock.RUnlock()

			if inflightCount > 0 {
				lastActivity = time.Now()
			} else if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}

// -- Event Handlers --

func (h *Harvester) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.inflight[e.RequestID] = true

	// A redirect reuses the RequestID; the new leg replaces the old state.
	h.requests[e.RequestID] = &requestState{
		request:      e.Request,
		resourceType: e.Type,
	}
}

func (h *Harvester) handleResponseReceived(e *network.EventResponseReceived) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if state, ok := h.requests[e.RequestID]; ok && e.Response != nil {
		state.status = e.Response.Status
	}
}

func (h *Harvester) handleLoadingFinished(e *network.EventLoadingFinished) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.inflight, e.RequestID)

	state, ok := h.requests[e.RequestID]
	if !ok {
		return
	}
	delete(h.requests, e.RequestID)

	if !h.capturing || !h.admit(state) {
		return
	}

	event := buildEvent(state)
	h.events = append(h.events, event)
	h.logger.Debug("Captured exchange.",
		zap.String("method", event.Method), zap.String("url", event.URL), zap.Int64("status", event.Status))
}

func (h *Harvester) handleLoadingFailed(e *network.EventLoadingFailed) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.inflight, e.RequestID)
	delete(h.requests, e.RequestID)
}

// admit decides whether a completed exchange belongs in the log: programmatic
// fetch/XHR only, success status only, and nothing on the telemetry denylist.
func (h *Harvester) admit(state *requestState) bool {
	if state.request == nil {
		return false
	}
	if state.resourceType != network.ResourceTypeFetch && state.resourceType != network.ResourceTypeXHR {
		return false
	}
	if state.status <= 0 || state.status >= 400 {
		return false
	}
	for _, deny := range h.denylist {
		if strings.Contains(state.request.URL, deny) {
			return false
		}
	}
	return true
}

// buildEvent converts the raw CDP request into the immutable log entry.
// Bodies that are not valid text are preserved base64-encoded rather than
// dropped; a failure to read the body never drops the event itself.
func buildEvent(state *requestState) schemas.NetworkEvent {
	req := state.request

	event := schemas.NetworkEvent{
		Method:         req.Method,
		URL:            req.URL,
		RequestHeaders: convertHeaders(req.Headers),
		Status:         state.status,
	}

	if req.HasPostData && len(req.PostDataEntries) > 0 {
		var body bytes.Buffer
		for _, entry := range req.PostDataEntries {
			// Entries arrive base64 encoded; older browsers may send raw text.
			if decoded, err := base64.StdEncoding.DecodeString(entry.Bytes); err == nil {
				body.Write(decoded)
			} else {
				body.WriteString(entry.Bytes)
			}
		}
		if data := body.Bytes(); len(data) > 0 {
			if utf8.Valid(data) {
				event.PostData = string(data)
			} else {
				event.PostDataBase64 = base64.StdEncoding.EncodeToString(data)
				event.PostDataIsBinary = true
			}
		}
	}

	return event
}

// convertHeaders flattens CDP's loosely-typed header map. CDP can join multi
// value headers with newlines; the first value is kept.
func convertHeaders(headers network.Headers) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if valStr, ok := value.(string); ok {
			out[name] = strings.SplitN(valStr, "\n", 2)[0]
		}
	}
	return out
}
