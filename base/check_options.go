package base

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/soldatov-s/go-dispatch/x/httpx"
)

type CheckFunc func(ctx context.Context) error

type CheckOptions struct {
	// Check name
	Name string
	// CheckFunc returns nil when the dependency is alive (or ready) and
	// an error describing the problem otherwise.
	CheckFunc CheckFunc
}

type MapCheckOptions struct {
	mu      sync.RWMutex
	options map[string]*CheckOptions
}

func NewMapCheckOptions() *MapCheckOptions {
	return &MapCheckOptions{
		options: make(map[string]*CheckOptions),
	}
}

func (mcf *MapCheckOptions) Append(src *MapCheckOptions) error {
	src.mu.RLock()
	defer src.mu.RUnlock()
	mcf.mu.Lock()
	defer mcf.mu.Unlock()

	for k, m := range src.options {
		if _, ok := mcf.options[k]; ok {
			return errors.Wrapf(ErrConflictName, "name: %s", k)
		}

		mcf.options[k] = m
	}

	return nil
}

func (mcf *MapCheckOptions) Add(options *CheckOptions) error {
	mcf.mu.Lock()
	defer mcf.mu.Unlock()

	if options == nil {
		return ErrOptionsIsNil
	}

	if options.Name == "" {
		return ErrEmptyOptionsName
	}

	if options.CheckFunc == nil {
		return ErrFuncIsNil
	}

	if _, ok := mcf.options[options.Name]; ok {
		return errors.Wrapf(ErrConflictName, "name: %s", options.Name)
	}

	mcf.options[options.Name] = options

	return nil
}

func (mcf *MapCheckOptions) AddCheck(name string, f CheckFunc) error {
	return mcf.Add(&CheckOptions{Name: name, CheckFunc: f})
}

// Check runs checks in name order and stops at the first failure.
func (mcf *MapCheckOptions) Check(ctx context.Context) (string, error) {
	mcf.mu.RLock()
	names := make([]string, 0, len(mcf.options))
	for k := range mcf.options {
		names = append(names, k)
	}
	mcf.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		mcf.mu.RLock()
		opt := mcf.options[name]
		mcf.mu.RUnlock()
		if err := opt.CheckFunc(ctx); err != nil {
			return name, err
		}
	}

	return "", nil
}

func (mcf *MapCheckOptions) Len() int {
	mcf.mu.RLock()
	defer mcf.mu.RUnlock()
	return len(mcf.options)
}

// WriteAnswer answers with the first failing check or {"result":"ok"}.
func (mcf *MapCheckOptions) WriteAnswer(ctx context.Context, w http.ResponseWriter) {
	if name, err := mcf.Check(ctx); err != nil {
		httpx.WriteErrAnswer(ctx, w, err, name)
		return
	}

	answ := httpx.ResultAnsw{Body: "ok"}
	if err := answ.WriteJSON(w); err != nil {
		zerolog.Ctx(ctx).Err(err).Msg("write json")
	}
}
