package engine

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"plugin"

	"cookia/internal/logging"
)

const (
	reloadSymbol = "Reload"

	symbolChatCompletions       = "ChatCompletions"
	symbolChatCompletionsCreate = "ChatCompletionsCreate"
	symbolCreateChatCompletions = "CreateChatCompletions"
)

type (
	reloadFunc     = func(modelPath string) error
	completionFunc = func(request []byte) ([]byte, error)
)

// PluginEngine runs inference through a Go plugin built per model library:
// <libDir>/<modelLib>.so. The plugin exports Reload and whichever completion
// entry points its build provides; requests and responses cross the plugin
// boundary as JSON.
type PluginEngine struct {
	libDir string
	logger *logging.Logger

	lib     *plugin.Plugin
	libPath string
}

// NewPluginEngine creates an engine loading libraries from libDir.
func NewPluginEngine(libDir string, logger *logging.Logger) *PluginEngine {
	return &PluginEngine{libDir: libDir, logger: logger}
}

// LibraryPath returns the shared object a model library id resolves to.
func (e *PluginEngine) LibraryPath(modelLib string) string {
	return filepath.Join(e.libDir, modelLib+".so")
}

// Reload opens the model library and loads the weights at modelPath.
func (e *PluginEngine) Reload(modelPath, modelLib string) error {
	libPath := e.LibraryPath(modelLib)

	// plugin.Open caches by path, reopening the same library is cheap.
	p, err := plugin.Open(libPath)
	if err != nil {
		return &NativeLibraryError{Op: "load", Lib: libPath, Diagnostic: err.Error(), Err: err}
	}

	sym, err := p.Lookup(reloadSymbol)
	if err != nil {
		return &NativeLibraryError{Op: "link", Lib: libPath, Diagnostic: err.Error(), Err: err}
	}
	reload, ok := sym.(reloadFunc)
	if !ok {
		return &NativeLibraryError{
			Op:         "link",
			Lib:        libPath,
			Diagnostic: fmt.Sprintf("symbol %s has type %T", reloadSymbol, sym),
		}
	}

	if err := reload(modelPath); err != nil {
		return fmt.Errorf("failed to load weights from %s: %w", modelPath, err)
	}

	e.lib = p
	e.libPath = libPath

	e.logger.Info("engine.plugin.loaded", "Model library loaded", map[string]interface{}{
		"lib":   libPath,
		"model": modelPath,
	})
	return nil
}

// ChatCompletions calls the plugin's ChatCompletions export.
func (e *PluginEngine) ChatCompletions(req ChatCompletionRequest) (any, error) {
	return e.call(symbolChatCompletions, req)
}

// ChatCompletionsCreate calls the plugin's ChatCompletionsCreate export.
func (e *PluginEngine) ChatCompletionsCreate(req ChatCompletionRequest) (any, error) {
	return e.call(symbolChatCompletionsCreate, req)
}

// CreateChatCompletions calls the plugin's CreateChatCompletions export.
func (e *PluginEngine) CreateChatCompletions(req ChatCompletionRequest) (any, error) {
	return e.call(symbolCreateChatCompletions, req)
}

func (e *PluginEngine) call(symbol string, req ChatCompletionRequest) (any, error) {
	if e.lib == nil {
		return nil, &NativeLibraryError{Op: "call", Diagnostic: "no model library loaded"}
	}

	sym, err := e.lib.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoSuchMethod, symbol, e.libPath)
	}
	complete, ok := sym.(completionFunc)
	if !ok {
		return nil, fmt.Errorf("%w: %s has type %T", ErrNoSuchMethod, symbol, sym)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	out, err := complete(body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}
