package lanes

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/listsync/internal/todo"
)

// itemFilter wraps a compiled CEL program evaluated against one item. When
// disabled, Match always returns true.
type itemFilter struct {
	prog    cel.Program
	enabled bool
}

var (
	filterEnvOnce sync.Once
	filterEnv     *cel.Env
	filterEnvErr  error
)

func itemEnv() (*cel.Env, error) {
	filterEnvOnce.Do(func() {
		filterEnv, filterEnvErr = cel.NewEnv(
			cel.Variable("id", cel.StringType),
			cel.Variable("description", cel.StringType),
			cel.Variable("status", cel.StringType),
			cel.Variable("position", cel.StringType),
			cel.Variable("created_by", cel.StringType),
			cel.Variable("created_ms", cel.IntType),
			cel.Variable("updated_ms", cel.IntType),
		)
	})
	return filterEnv, filterEnvErr
}

func newItemFilter(expr string) (itemFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return itemFilter{}, nil
	}
	env, err := itemEnv()
	if err != nil {
		return itemFilter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return itemFilter{}, fmt.Errorf("%w: %v", ErrFilter, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return itemFilter{}, fmt.Errorf("%w: expression must be boolean", ErrFilter)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return itemFilter{}, fmt.Errorf("%w: %v", ErrFilter, err)
	}
	return itemFilter{prog: prog, enabled: true}, nil
}

// Match evaluates the expression for it. Evaluation errors count as no match.
func (f itemFilter) Match(it todo.Item) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":          it.ID,
		"description": it.Description,
		"status":      string(it.Status),
		"position":    it.Position,
		"created_by":  it.CreatedBy,
		"created_ms":  it.CreatedAt.UnixMilli(),
		"updated_ms":  it.UpdatedAt.UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// filterCache keeps compiled programs by expression; clients tend to repeat
// the same filter on every fetch.
type filterCache struct {
	mu    sync.Mutex
	progs map[string]itemFilter
	max   int
}

func newFilterCache(max int) *filterCache {
	return &filterCache{progs: make(map[string]itemFilter), max: max}
}

func (c *filterCache) get(expr string) (itemFilter, error) {
	c.mu.Lock()
	f, ok := c.progs[expr]
	c.mu.Unlock()
	if ok {
		return f, nil
	}
	f, err := newItemFilter(expr)
	if err != nil {
		return itemFilter{}, err
	}
	c.mu.Lock()
	if len(c.progs) >= c.max {
		c.progs = make(map[string]itemFilter)
	}
	c.progs[expr] = f
	c.mu.Unlock()
	return f, nil
}

// CheckFilter reports whether expr compiles to a boolean item filter.
func CheckFilter(expr string) error {
	_, err := newItemFilter(expr)
	return err
}
