package browser

import (
	"context"
	"time"
)

// PageDriver is the minimal set of page primitives the actuation ladders and
// the login state machine need. The chromedp-backed Session implements it;
// tests substitute scripted fakes.
//
// All methods block until the action completes or the context expires. Only
// one action may be in flight against a page at a time.
type PageDriver interface {
	// Navigate loads the URL and waits for the page to stabilize.
	Navigate(ctx context.Context, url string) error
	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// SetValue is the platform's native fill primitive.
	SetValue(ctx context.Context, selector, value string) error
	// Value reads an input's current value back.
	Value(ctx context.Context, selector string) (string, error)
	// Click is the platform's native click primitive.
	Click(ctx context.Context, selector string) error
	// Focus moves keyboard focus to the element.
	Focus(ctx context.Context, selector string) error
	// TypeText emits keyboard events for each character into the focused
	// element, pausing perKey between characters.
	TypeText(ctx context.Context, text string, perKey time.Duration) error
	// PressPaste emits the platform paste chord (Ctrl+V).
	PressPaste(ctx context.Context) error

	// Evaluate runs the script in page context, unmarshaling the result into
	// out when out is non-nil.
	Evaluate(ctx context.Context, script string, out interface{}) error

	// WaitIdle blocks until no network request has been in flight for quiet.
	WaitIdle(ctx context.Context, quiet time.Duration) error
	// CurrentURL returns the page's current location.
	CurrentURL(ctx context.Context) (string, error)
}

// Operator is the blocking human-in-the-loop channel. Prompts are part of the
// pipeline's contract: a required-field cycle never proceeds without either a
// supplied value or an explicit empty answer (a skip).
type Operator interface {
	// Prompt asks for a value with echo (email, OTP code). Empty means skip.
	Prompt(prompt string) (string, error)
	// PromptSecret asks for a value without echo (passwords).
	PromptSecret(prompt string) (string, error)
	// Confirm blocks until the operator acknowledges.
	Confirm(prompt string) error
}
