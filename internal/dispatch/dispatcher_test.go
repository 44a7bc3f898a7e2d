package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookia/internal/engine"
)

type mapResolver map[string]string

func (m mapResolver) ResolveLibraryID(id string) (string, bool) {
	lib, ok := m[id]
	return lib, ok
}

// createOnlyEngine provides only the third completion variant, as a string
// typed response.
type createOnlyEngine struct {
	reloads  []string
	calls    int
	lastReq  engine.ChatCompletionRequest
	reply    string
	reloadFn func() error
}

func (e *createOnlyEngine) Reload(path, lib string) error {
	e.reloads = append(e.reloads, path+"|"+lib)
	if e.reloadFn != nil {
		return e.reloadFn()
	}
	return nil
}

func (e *createOnlyEngine) CreateChatCompletions(req engine.ChatCompletionRequest) (any, error) {
	e.calls++
	e.lastReq = req
	return &engine.ChatCompletionResponse{
		Choices: []engine.Choice{{Message: &engine.ChatMessage{Role: engine.RoleAssistant, Content: e.reply}}},
	}, nil
}

// probingEngine implements every variant but reports the first as missing
// at runtime, like a dynamic library lacking the symbol.
type probingEngine struct {
	first, second int
}

func (e *probingEngine) Reload(string, string) error { return nil }

func (e *probingEngine) ChatCompletions(engine.ChatCompletionRequest) (any, error) {
	e.first++
	return nil, engine.ErrNoSuchMethod
}

func (e *probingEngine) ChatCompletionsCreate(engine.ChatCompletionRequest) (any, error) {
	e.second++
	return []byte(`{"choices":[{"delta":{"content":"hola 🍪"}}]}`), nil
}

func (e *probingEngine) CreateChatCompletions(engine.ChatCompletionRequest) (any, error) {
	return nil, errors.New("must not be reached")
}

type bareEngine struct{}

func (bareEngine) Reload(string, string) error { return nil }

func testOptions() Options {
	return Options{SystemPrompt: "be brief", Temperature: 0.7, MaxTokens: 64}
}

func TestGenerate_ThirdVariantOnly(t *testing.T) {
	eng := &createOnlyEngine{reply: "hola 🍪"}
	d := New(eng, mapResolver{"m1": "lib_m1"}, testOptions(), nil)

	result, err := d.Generate(context.Background(), "m1", "/data/models/m1", "hi")
	require.NoError(t, err)

	assert.Equal(t, "hola 🍪", result.Text)
	assert.Equal(t, "createChatCompletions", result.Variant)
	assert.GreaterOrEqual(t, result.Duration, time.Duration(0))
	assert.Equal(t, []string{"/data/models/m1|lib_m1"}, eng.reloads)
}

func TestGenerate_RequestShape(t *testing.T) {
	eng := &createOnlyEngine{reply: "ok"}
	d := New(eng, mapResolver{"m1": "lib_m1"}, testOptions(), nil)

	_, err := d.Generate(context.Background(), "m1", "/data/models/m1", "hi")
	require.NoError(t, err)

	req := eng.lastReq
	assert.Equal(t, "m1", req.Model)
	assert.False(t, req.Stream)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 64, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, engine.ChatMessage{Role: engine.RoleSystem, Content: "be brief"}, req.Messages[0])
	assert.Equal(t, engine.ChatMessage{Role: engine.RoleUser, Content: "hi"}, req.Messages[1])
}

func TestGenerate_FallsBackAndCachesVariant(t *testing.T) {
	eng := &probingEngine{}
	d := New(eng, mapResolver{"m1": "lib_m1"}, testOptions(), nil)

	for i := 0; i < 3; i++ {
		result, err := d.Generate(context.Background(), "m1", "/data/models/m1", "hi")
		require.NoError(t, err)
		assert.Equal(t, "hola 🍪", result.Text)
		assert.Equal(t, "chatCompletionsCreate", result.Variant)
	}

	assert.Equal(t, 1, eng.first, "missing variant should only be probed once")
	assert.Equal(t, 3, eng.second)
}

func TestGenerate_UnknownModel(t *testing.T) {
	eng := &createOnlyEngine{}
	d := New(eng, mapResolver{}, testOptions(), nil)

	_, err := d.Generate(context.Background(), "m9", "/data/models/m9", "hi")

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "model library not found for id m9", err.Error())
	assert.Empty(t, eng.reloads)
}

func TestGenerate_NotInstalled(t *testing.T) {
	d := New(&createOnlyEngine{}, mapResolver{"m1": "lib_m1"}, testOptions(), nil)

	_, err := d.Generate(context.Background(), "m1", "", "hi")
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestGenerate_NativeLibraryErrorPassesThrough(t *testing.T) {
	native := &engine.NativeLibraryError{Op: "load", Lib: "lib_m1.so", Diagnostic: "cannot open shared object file"}
	eng := &createOnlyEngine{reloadFn: func() error { return native }}
	d := New(eng, mapResolver{"m1": "lib_m1"}, testOptions(), nil)

	_, err := d.Generate(context.Background(), "m1", "/data/models/m1", "hi")

	var nativeErr *engine.NativeLibraryError
	require.ErrorAs(t, err, &nativeErr)
	assert.Contains(t, err.Error(), "cannot open shared object file")
	assert.Zero(t, eng.calls)
}

func TestGenerate_ReloadFailure(t *testing.T) {
	eng := &createOnlyEngine{reloadFn: func() error { return errors.New("weights corrupt") }}
	d := New(eng, mapResolver{"m1": "lib_m1"}, testOptions(), nil)

	_, err := d.Generate(context.Background(), "m1", "/data/models/m1", "hi")

	var loadErr *EngineLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "lib_m1", loadErr.Lib)
	assert.Contains(t, err.Error(), "weights corrupt")
}

func TestGenerate_UnsupportedEngine(t *testing.T) {
	d := New(bareEngine{}, mapResolver{"m1": "lib_m1"}, testOptions(), nil)

	_, err := d.Generate(context.Background(), "m1", "/data/models/m1", "hi")

	var unsupported *UnsupportedEngineError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, engine.VariantNames(), unsupported.Candidates)
	assert.ErrorIs(t, err, engine.ErrNoSuchMethod)
}

// serialEngine fails the test if two engine calls overlap.
type serialEngine struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (e *serialEngine) enter() func() {
	if e.inFlight.Add(1) > 1 {
		e.overlap.Store(true)
	}
	time.Sleep(2 * time.Millisecond)
	return func() { e.inFlight.Add(-1) }
}

func (e *serialEngine) Reload(string, string) error {
	defer e.enter()()
	return nil
}

func (e *serialEngine) ChatCompletions(engine.ChatCompletionRequest) (any, error) {
	defer e.enter()()
	return map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": "ok"}}}}, nil
}

func TestGenerate_Serialized(t *testing.T) {
	eng := &serialEngine{}
	d := New(eng, mapResolver{"m1": "lib_m1"}, testOptions(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := d.Generate(context.Background(), "m1", "/data/models/m1", "hi")
			assert.NoError(t, err)
			assert.Equal(t, "ok", result.Text)
		}()
	}
	wg.Wait()

	assert.False(t, eng.overlap.Load(), "engine calls overlapped")
}

func TestGenerate_CancelledWhileWaiting(t *testing.T) {
	d := New(&createOnlyEngine{}, mapResolver{"m1": "lib_m1"}, testOptions(), nil)
	require.True(t, d.slot.TryAcquire(1))
	defer d.slot.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Generate(ctx, "m1", "/data/models/m1", "hi")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_DurationExcludesQueueing(t *testing.T) {
	var clock atomic.Int64
	eng := &createOnlyEngine{
		reply: "ok",
		reloadFn: func() error {
			clock.Add(int64(time.Second))
			return nil
		},
	}
	d := New(eng, mapResolver{"m1": "lib_m1"}, testOptions(), nil)
	d.now = func() time.Time { return time.Unix(0, clock.Load()) }

	require.True(t, d.slot.TryAcquire(1))

	done := make(chan Result, 1)
	go func() {
		result, err := d.Generate(context.Background(), "m1", "/data/models/m1", "hi")
		assert.NoError(t, err)
		done <- result
	}()

	// time spent waiting for the engine
	time.Sleep(20 * time.Millisecond)
	clock.Add(int64(10 * time.Second))
	d.slot.Release(1)

	result := <-done
	assert.Equal(t, time.Second, result.Duration)
}
