package registry

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/internal/replay"
)

// hostImportPath is what generated tool files import to reach the host:
//
//	import "webrecorder/host"
//
// host.RegisterTool adds a tool; host.DoJSON and host.CsrfToken replay
// authenticated requests with the recorded session.
const hostImportPath = "webrecorder/host/host"

// Loader evaluates generated tool source with an embedded interpreter and
// registers the result against the live registry. Interpreting instead of
// compiling means a regenerated file is live as soon as Reload returns.
type Loader struct {
	registry *Registry
	client   *replay.Client
	logger   *zap.Logger

	mu     sync.Mutex
	loaded map[string][]string // source path -> registered tool names
}

// NewLoader wires a loader to the registry and the replay client handed to
// tools.
func NewLoader(reg *Registry, client *replay.Client, logger *zap.Logger) *Loader {
	return &Loader{
		registry: reg,
		client:   client,
		logger:   logger.Named("loader"),
		loaded:   make(map[string][]string),
	}
}

// Reload evaluates the tool source at path in a fresh interpreter. The file
// must declare `package main` and a `func RegisterTools()` that calls
// host.RegisterTool for each tool. On success the file's previous
// registrations are replaced wholesale; on any error the registry is left
// untouched.
func (l *Loader) Reload(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read tool source: %w", err)
	}

	// A fresh interpreter per reload; stale state from the previous file
	// must not leak into the new one.
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("failed to load interpreter stdlib: %w", err)
	}

	staged := make(map[string]Tool)
	exports := interp.Exports{
		hostImportPath: {
			"RegisterTool": reflect.ValueOf(func(name string, tool func(context.Context, map[string]interface{}) (interface{}, error)) {
				staged[name] = Tool(tool)
			}),
			"DoJSON":    reflect.ValueOf(l.client.DoJSON),
			"CsrfToken": reflect.ValueOf(l.client.CsrfToken),
		},
	}
	if err := i.Use(exports); err != nil {
		return fmt.Errorf("failed to expose host symbols: %w", err)
	}

	if _, err := i.Eval(string(src)); err != nil {
		return fmt.Errorf("tool source evaluation failed: %w", err)
	}

	v, err := i.Eval("main.RegisterTools")
	if err != nil {
		return fmt.Errorf("RegisterTools function not found: %w", err)
	}
	registerFn, ok := v.Interface().(func())
	if !ok {
		return fmt.Errorf("RegisterTools has wrong signature (expected func())")
	}

	// Registration runs interpreted code; bound it with the caller's context.
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("tool registration panicked: %v", r)
				return
			}
			errCh <- nil
		}()
		registerFn()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return fmt.Errorf("tool registration timed out: %w", ctx.Err())
	}

	l.registry.replaceFrom(l.loaded[path], staged)
	names := make([]string, 0, len(staged))
	for name := range staged {
		names = append(names, name)
	}
	l.loaded[path] = names

	l.logger.Info("Tool source reloaded.", zap.String("path", path), zap.Int("tools", len(staged)))
	return nil
}
