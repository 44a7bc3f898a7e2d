package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"cookia/internal/engine"
	"cookia/internal/logging"
)

// LibraryResolver maps a model id to the engine library it needs.
type LibraryResolver interface {
	ResolveLibraryID(modelID string) (string, bool)
}

// Options are the fixed parameters of every chat request.
type Options struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Result is the normalized outcome of one generation.
type Result struct {
	Text     string
	Duration time.Duration
	Variant  string
}

// Dispatcher owns the engine: it reloads the model, issues the completion
// through whichever entry point the engine build provides and normalizes the
// response. At most one engine operation is in flight at a time.
type Dispatcher struct {
	engine   engine.Engine
	resolver LibraryResolver
	opts     Options
	logger   *logging.Logger

	slot *semaphore.Weighted

	// guarded by slot
	resolved *engine.Variant
	now      func() time.Time
}

// New creates a dispatcher for eng.
func New(eng engine.Engine, resolver LibraryResolver, opts Options, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		engine:   eng,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		slot:     semaphore.NewWeighted(1),
		now:      time.Now,
	}
}

// BuildRequest assembles the chat request for prompt.
func (d *Dispatcher) BuildRequest(modelID, prompt string) engine.ChatCompletionRequest {
	return engine.ChatCompletionRequest{
		Model: modelID,
		Messages: []engine.ChatMessage{
			{Role: engine.RoleSystem, Content: d.opts.SystemPrompt},
			{Role: engine.RoleUser, Content: prompt},
		},
		Stream:      false,
		Temperature: d.opts.Temperature,
		MaxTokens:   d.opts.MaxTokens,
	}
}

// Generate reloads modelID from installedPath and runs prompt through it.
// It blocks until the engine is free; ctx only bounds that wait, the engine
// calls themselves are not interruptible.
func (d *Dispatcher) Generate(ctx context.Context, modelID, installedPath, prompt string) (Result, error) {
	if installedPath == "" {
		return Result{}, ErrNotInstalled
	}

	lib, ok := d.resolver.ResolveLibraryID(modelID)
	if !ok {
		return Result{}, &ConfigError{ModelID: modelID}
	}

	if err := d.slot.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("waiting for engine: %w", err)
	}
	defer d.slot.Release(1)

	// queueing behind another call is not part of the generation time
	start := d.now()

	if err := d.reload(installedPath, lib); err != nil {
		return Result{}, err
	}

	resp, variant, err := d.complete(d.BuildRequest(modelID, prompt))
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Text:     engine.ExtractText(resp),
		Duration: d.now().Sub(start),
		Variant:  variant,
	}

	d.logger.Info("dispatch.generate.completed", "Generation completed", map[string]interface{}{
		"model":       modelID,
		"variant":     variant,
		"duration_ms": result.Duration.Milliseconds(),
		"chars":       len(result.Text),
	})

	return result, nil
}

func (d *Dispatcher) reload(installedPath, lib string) error {
	d.logger.Info("dispatch.reload.started", "Reloading engine", map[string]interface{}{
		"path": installedPath,
		"lib":  lib,
	})

	err := d.engine.Reload(installedPath, lib)
	if err == nil {
		return nil
	}

	d.logger.Error("dispatch.reload.failed", "Engine reload failed", map[string]interface{}{
		"path":  installedPath,
		"lib":   lib,
		"error": err.Error(),
	})

	var nativeErr *engine.NativeLibraryError
	if errors.As(err, &nativeErr) {
		return err
	}
	return &EngineLoadError{ModelPath: installedPath, Lib: lib, Err: err}
}

// complete calls the cached entry point, probing the variants in order when
// none is cached yet or the cached one has disappeared.
func (d *Dispatcher) complete(req engine.ChatCompletionRequest) (any, string, error) {
	if d.resolved != nil {
		if call, ok := d.resolved.Bind(d.engine); ok {
			resp, err := call(req)
			if !errors.Is(err, engine.ErrNoSuchMethod) {
				return resp, d.resolved.Name, completionError(d.resolved.Name, err)
			}
		}
		d.logger.Warn("dispatch.variant.lost", "Cached completion entry point no longer available", map[string]interface{}{
			"variant": d.resolved.Name,
		})
		d.resolved = nil
	}

	var (
		tried   []string
		lastErr error
	)
	for i := range engine.Variants {
		v := engine.Variants[i]
		tried = append(tried, v.Name)

		call, ok := v.Bind(d.engine)
		if !ok {
			lastErr = fmt.Errorf("%w: %s", engine.ErrNoSuchMethod, v.Name)
			continue
		}

		resp, err := call(req)
		if errors.Is(err, engine.ErrNoSuchMethod) {
			d.logger.Debug("dispatch.variant.unavailable", "Completion entry point not available", map[string]interface{}{
				"variant": v.Name,
				"error":   err.Error(),
			})
			lastErr = err
			continue
		}

		d.resolved = &v
		d.logger.Info("dispatch.variant.resolved", "Completion entry point resolved", map[string]interface{}{
			"variant": v.Name,
		})
		return resp, v.Name, completionError(v.Name, err)
	}

	return nil, "", &UnsupportedEngineError{Candidates: tried, Cause: lastErr}
}

func completionError(variant string, err error) error {
	if err == nil {
		return nil
	}
	var nativeErr *engine.NativeLibraryError
	if errors.As(err, &nativeErr) {
		return err
	}
	return fmt.Errorf("chat completion via %s: %w", variant, err)
}
