package llmmap

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexora-ai/lexora/internal/llm"
)

// fakeCompleter echoes a transformation of the user message, tracks call
// counts and the in-flight high-water mark, and can inject delays/failures.
type fakeCompleter struct {
	mu       sync.Mutex
	calls    int
	inFlight int32
	maxSeen  int32
	delay    bool
	respond  func(userMsg string) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, cur) {
			break
		}
	}
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(rand.IntN(10)) * time.Millisecond):
		}
	}

	user := req.Messages[len(req.Messages)-1].Content
	if f.respond != nil {
		return f.respond(user)
	}
	return "echo:" + user, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestMapTextPreservesInputOrder(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{delay: true}
	tmpl := Template{User: "process {item}"}

	inputs := make([]string, 50)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("input-%02d", i)
	}

	out, err := MapText(context.Background(), f, inputs, tmpl, Options{Concurrency: 8, UseCache: true})
	require.NoError(t, err)
	require.Len(t, out, len(inputs))
	for i, got := range out {
		assert.Equal(t, "echo:process "+inputs[i], got, "position %d out of order", i)
	}
}

func TestMapTextRespectsConcurrencyCap(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{delay: true}
	tmpl := Template{User: "{item}"}

	inputs := make([]string, 40)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("i%d", i)
	}

	_, err := MapText(context.Background(), f, inputs, tmpl, Options{Concurrency: 4, UseCache: false})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&f.maxSeen), int32(4))
}

func TestMapTextSecondRunUsesCache(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{}
	tmpl := Template{System: "eres un abogado", User: "analiza {item}"}
	inputs := []string{"uno", "dos", "tres"}
	opts := Options{Concurrency: 2, UseCache: true}

	first, err := MapText(context.Background(), f, inputs, tmpl, opts)
	require.NoError(t, err)
	require.Equal(t, 3, f.callCount())

	second, err := MapText(context.Background(), f, inputs, tmpl, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, f.callCount(), "identical (template, inputs) must make zero LLM calls")
	assert.Equal(t, first, second)
}

func TestMapTextCacheIsTemplateScoped(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{}
	inputs := []string{"mismo texto"}
	opts := Options{UseCache: true}

	_, err := MapText(context.Background(), f, inputs, Template{User: "resume {item}"}, opts)
	require.NoError(t, err)
	_, err = MapText(context.Background(), f, inputs, Template{User: "traduce {item}"}, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount(), "different templates must not share cache entries")
}

func TestMapTextCacheDisabled(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{}
	tmpl := Template{User: "{item}"}
	opts := Options{UseCache: false}

	_, err := MapText(context.Background(), f, []string{"a"}, tmpl, opts)
	require.NoError(t, err)
	_, err = MapText(context.Background(), f, []string{"a"}, tmpl, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount())
}

func TestClearCacheReportsCount(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{}
	tmpl := Template{User: "{item}"}

	_, err := MapText(context.Background(), f, []string{"x", "y", "z"}, tmpl, Options{UseCache: true})
	require.NoError(t, err)

	assert.Equal(t, 3, ClearCache())
	assert.Equal(t, 0, ClearCache(), "cache must be empty after clear")
}

func TestMapTextSingleFailureAbortsMap(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{respond: func(user string) (string, error) {
		if strings.Contains(user, "malo") {
			return "", fmt.Errorf("boom")
		}
		return "ok", nil
	}}
	tmpl := Template{User: "{item}"}

	_, err := MapText(context.Background(), f, []string{"bueno", "malo", "bueno"}, tmpl, Options{Concurrency: 1, UseCache: false})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestMapTextCancellationPropagates(t *testing.T) {
	ClearCache()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 1)
	f := &fakeCompleter{respond: func(string) (string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return "", ctx.Err()
	}}

	errCh := make(chan error, 1)
	go func() {
		_, err := MapText(ctx, f, []string{"a", "b", "c"}, Template{User: "{item}"}, Options{Concurrency: 1, UseCache: false})
		errCh <- err
	}()

	<-started
	cancel()
	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
}

func TestMapTextEmptyInputMakesNoCalls(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{}
	out, err := MapText(context.Background(), f, nil, Template{User: "{item}"}, Options{UseCache: true})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Zero(t, f.callCount())
}

type verdict struct {
	Score int    `json:"score"`
	Note  string `json:"note"`
}

func TestMapStructuredParsesJSON(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{respond: func(user string) (string, error) {
		return fmt.Sprintf(`{"score": %d, "note": "n"}`, len(user)), nil
	}}
	format := llm.ResponseFormat{Name: "verdict", Schema: json.RawMessage(`{"type":"object"}`)}

	out, err := MapStructured[verdict](context.Background(), f, []string{"ab", "abcd"}, Template{User: "{item}"}, format, Options{UseCache: true})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].Score)
	assert.Equal(t, 4, out[1].Score)
}

func TestMapStructuredInvalidJSONFails(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{respond: func(string) (string, error) {
		return "not json", nil
	}}
	format := llm.ResponseFormat{Name: "verdict", Schema: json.RawMessage(`{"type":"object"}`)}

	_, err := MapStructured[verdict](context.Background(), f, []string{"a"}, Template{User: "{item}"}, format, Options{UseCache: false})
	require.Error(t, err)
}

func TestMapStructuredSecondRunUsesCache(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{respond: func(string) (string, error) {
		return `{"score": 7, "note": ""}`, nil
	}}
	format := llm.ResponseFormat{Name: "verdict", Schema: json.RawMessage(`{"type":"object"}`)}
	opts := Options{UseCache: true}

	_, err := MapStructured[verdict](context.Background(), f, []string{"a", "b"}, Template{User: "{item}"}, format, opts)
	require.NoError(t, err)
	out, err := MapStructured[verdict](context.Background(), f, []string{"a", "b"}, Template{User: "{item}"}, format, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount())
	assert.Equal(t, 7, out[0].Score)
}

func TestMapPipelineChainsStages(t *testing.T) {
	ClearCache()
	f := &fakeCompleter{respond: func(user string) (string, error) {
		return "[" + user + "]", nil
	}}
	stages := []Stage{
		{Template: Template{User: "primero {item}"}},
		{Template: Template{User: "segundo {item}"}},
	}

	out, err := MapPipeline(context.Background(), f, []string{"x"}, stages, Options{UseCache: false})
	require.NoError(t, err)
	require.Len(t, out, 1)
	// Stage one's output is coerced to string and fed to stage two.
	assert.Equal(t, "[segundo [primero x]]", out[0])
}

func TestMapPipelineRequiresStages(t *testing.T) {
	_, err := MapPipeline(context.Background(), &fakeCompleter{}, []string{"x"}, nil, Options{})
	require.Error(t, err)
}

func TestTemplateRender(t *testing.T) {
	tmpl := Template{System: "sys", User: "hola {item}!"}
	msgs := tmpl.Render("mundo")
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "hola mundo!", msgs[1].Content)

	noSys := Template{User: "{item}"}
	msgs = noSys.Render("a")
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
}
