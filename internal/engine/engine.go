package engine

import (
	"errors"
	"fmt"
)

// ErrNoSuchMethod is returned by an engine that does not provide the
// requested completion entry point in this build.
var ErrNoSuchMethod = errors.New("no such method")

// NativeLibraryError reports a failure to load or link the engine's native
// library. It is kept apart from ordinary errors so callers can give a more
// specific diagnostic.
type NativeLibraryError struct {
	Op         string
	Lib        string
	Diagnostic string
	Err        error
}

func (e *NativeLibraryError) Error() string {
	if e.Lib == "" {
		return fmt.Sprintf("native library %s failed: %s", e.Op, e.Diagnostic)
	}
	return fmt.Sprintf("native library %s failed for %s: %s", e.Op, e.Lib, e.Diagnostic)
}

func (e *NativeLibraryError) Unwrap() error {
	return e.Err
}

// Engine is the on-device inference runtime. Reload loads the weights at
// modelPath using the engine library identified by modelLib; it may take a
// long time and must not run on the UI goroutine.
//
// An Engine is a single shared resource: callers must not overlap Reload
// and completion calls.
type Engine interface {
	Reload(modelPath, modelLib string) error
}

// ChatCompletionsAPI is the entry point of engine builds that expose
// chatCompletions directly.
type ChatCompletionsAPI interface {
	ChatCompletions(req ChatCompletionRequest) (any, error)
}

// ChatCompletionsCreateAPI mirrors the chat.completions.create surface.
type ChatCompletionsCreateAPI interface {
	ChatCompletionsCreate(req ChatCompletionRequest) (any, error)
}

// CreateChatCompletionsAPI is the entry point of older engine builds.
type CreateChatCompletionsAPI interface {
	CreateChatCompletions(req ChatCompletionRequest) (any, error)
}

// CompletionFunc issues one chat completion and returns the engine's raw
// response.
type CompletionFunc func(req ChatCompletionRequest) (any, error)

// Variant is one known generation of the completion API.
type Variant struct {
	Name string
	bind func(Engine) (CompletionFunc, bool)
}

// Bind returns the variant's entry point on e, or false when e does not
// implement it.
func (v Variant) Bind(e Engine) (CompletionFunc, bool) {
	return v.bind(e)
}

// Variants lists the completion entry points in the order they are tried.
var Variants = []Variant{
	{
		Name: "chatCompletions",
		bind: func(e Engine) (CompletionFunc, bool) {
			api, ok := e.(ChatCompletionsAPI)
			if !ok {
				return nil, false
			}
			return api.ChatCompletions, true
		},
	},
	{
		Name: "chatCompletionsCreate",
		bind: func(e Engine) (CompletionFunc, bool) {
			api, ok := e.(ChatCompletionsCreateAPI)
			if !ok {
				return nil, false
			}
			return api.ChatCompletionsCreate, true
		},
	},
	{
		Name: "createChatCompletions",
		bind: func(e Engine) (CompletionFunc, bool) {
			api, ok := e.(CreateChatCompletionsAPI)
			if !ok {
				return nil, false
			}
			return api.CreateChatCompletions, true
		},
	},
}

// VariantNames returns the names of Variants in order.
func VariantNames() []string {
	names := make([]string, len(Variants))
	for i, v := range Variants {
		names[i] = v.Name
	}
	return names
}
