package browser

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakePage is a scripted PageDriver. Unset function fields default to
// success; values tracks what SetValue and TypeText wrote per selector.
type fakePage struct {
	mu    sync.Mutex
	calls []string

	values  map[string]string
	focused string

	navigateFn   func(url string) error
	screenshotFn func() ([]byte, error)
	setValueFn   func(selector, value string) error
	valueFn      func(selector string) (string, error)
	clickFn      func(selector string) error
	typeTextFn   func(text string) error
	pressPasteFn func() error
	evaluateFn   func(script string, out interface{}) error
	waitIdleFn   func() error
	currentURL   string
}

func newFakePage() *fakePage {
	return &fakePage{values: map[string]string{}}
}

func (f *fakePage) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakePage) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.record("navigate:" + url)
	if f.navigateFn != nil {
		return f.navigateFn(url)
	}
	return nil
}

func (f *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	f.record("screenshot")
	if f.screenshotFn != nil {
		return f.screenshotFn()
	}
	return []byte("png"), nil
}

func (f *fakePage) SetValue(ctx context.Context, selector, value string) error {
	f.record("setvalue:" + selector)
	if f.setValueFn != nil {
		return f.setValueFn(selector, value)
	}
	f.mu.Lock()
	f.values[selector] = value
	f.mu.Unlock()
	return nil
}

func (f *fakePage) Value(ctx context.Context, selector string) (string, error) {
	f.record("value:" + selector)
	if f.valueFn != nil {
		return f.valueFn(selector)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[selector], nil
}

func (f *fakePage) Click(ctx context.Context, selector string) error {
	f.record("click:" + selector)
	if f.clickFn != nil {
		return f.clickFn(selector)
	}
	f.mu.Lock()
	f.focused = selector
	f.mu.Unlock()
	return nil
}

func (f *fakePage) Focus(ctx context.Context, selector string) error {
	f.record("focus:" + selector)
	f.mu.Lock()
	f.focused = selector
	f.mu.Unlock()
	return nil
}

func (f *fakePage) TypeText(ctx context.Context, text string, perKey time.Duration) error {
	f.record("type:" + text)
	if f.typeTextFn != nil {
		return f.typeTextFn(text)
	}
	f.mu.Lock()
	if f.focused != "" {
		f.values[f.focused] += text
	}
	f.mu.Unlock()
	return nil
}

func (f *fakePage) PressPaste(ctx context.Context) error {
	f.record("paste")
	if f.pressPasteFn != nil {
		return f.pressPasteFn()
	}
	return nil
}

func (f *fakePage) Evaluate(ctx context.Context, script string, out interface{}) error {
	f.record("evaluate")
	if f.evaluateFn != nil {
		return f.evaluateFn(script, out)
	}
	if b, ok := out.(*bool); ok {
		*b = true
	}
	return nil
}

func (f *fakePage) WaitIdle(ctx context.Context, quiet time.Duration) error {
	f.record("waitidle")
	if f.waitIdleFn != nil {
		return f.waitIdleFn()
	}
	return nil
}

func (f *fakePage) CurrentURL(ctx context.Context) (string, error) {
	f.record("currenturl")
	return f.currentURL, nil
}

var _ PageDriver = (*fakePage)(nil)

// fakeOperator replays canned answers in call order.
type fakeOperator struct {
	mu         sync.Mutex
	answers    []string
	secrets    []string
	confirmErr error
	prompts    []string
}

func (o *fakeOperator) Prompt(prompt string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prompts = append(o.prompts, prompt)
	if len(o.answers) == 0 {
		return "", errors.New("no scripted answer")
	}
	ans := o.answers[0]
	o.answers = o.answers[1:]
	return ans, nil
}

func (o *fakeOperator) PromptSecret(prompt string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prompts = append(o.prompts, prompt)
	if len(o.secrets) == 0 {
		return "", errors.New("no scripted secret")
	}
	sec := o.secrets[0]
	o.secrets = o.secrets[1:]
	return sec, nil
}

func (o *fakeOperator) Confirm(prompt string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prompts = append(o.prompts, prompt)
	return o.confirmErr
}

var _ Operator = (*fakeOperator)(nil)
