package lanes

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/listsync/internal/command"
	"github.com/rzbill/listsync/internal/orderkey"
	"github.com/rzbill/listsync/internal/store"
	"github.com/rzbill/listsync/internal/todo"
)

// Executor applies commands to the store. It must only be called from inside
// the command's lane.
type Executor struct {
	store   store.Store
	filters *filterCache
}

var _ command.Handler = (*Executor)(nil)

// NewExecutor returns an Executor over st.
func NewExecutor(st store.Store) *Executor {
	return &Executor{store: st, filters: newFilterCache(256)}
}

// storageErr keeps not-found and conflicts as they are and marks everything
// else retryable.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func (e *Executor) CreateItem(ctx context.Context, c command.CreateItem) (*command.Result, error) {
	last, err := e.store.MaxOrderKey(ctx, c.ListID)
	if err != nil {
		return nil, storageErr("max order key", err)
	}
	key, err := orderkey.Between(last, "")
	if err != nil {
		return nil, fmt.Errorf("order key after %q: %w", last, err)
	}
	item, err := e.store.InsertItem(ctx, store.NewItem{
		ID:          c.ItemID,
		ListID:      c.ListID,
		CreatedBy:   c.IssuedBy,
		Position:    key,
		Description: c.Description,
	})
	if err != nil {
		return nil, storageErr("insert item", err)
	}
	return command.NewResult(c, item)
}

func (e *Executor) Reposition(ctx context.Context, c command.Reposition) (*command.Result, error) {
	items, err := e.store.ListItems(ctx, c.ListID)
	if err != nil {
		return nil, storageErr("list items", err)
	}
	lower, upper, move, err := neighbors(items, c)
	if err != nil {
		return nil, err
	}
	if !move {
		return nil, nil
	}
	key, err := orderkey.Between(lower, upper)
	if err != nil {
		return nil, fmt.Errorf("order key between %q and %q: %w", lower, upper, err)
	}
	at, err := e.store.UpdatePosition(ctx, c.ItemID, c.ListID, key)
	if err != nil {
		return nil, storageErr("update position", err)
	}
	return command.NewResult(c, command.ItemRepositioned{ItemID: c.ItemID, Position: key, UpdatedAt: at})
}

func indexOf(items []todo.Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// neighbors resolves the keys the moved item must land between, against the
// current order. move is false when the item is already where it was asked
// to go.
func neighbors(items []todo.Item, c command.Reposition) (lower, upper string, move bool, err error) {
	i := indexOf(items, c.ItemID)
	if i < 0 {
		return "", "", false, fmt.Errorf("item %s: %w", c.ItemID, store.ErrNotFound)
	}
	last := len(items) - 1
	pos := func(k int) string {
		if k < 0 || k > last || k == i {
			return ""
		}
		return items[k].Position
	}

	switch {
	case c.BeforeID != "":
		j := indexOf(items, c.BeforeID)
		if j < 0 {
			return "", "", false, fmt.Errorf("anchor %s: %w", c.BeforeID, store.ErrNotFound)
		}
		if j == i+1 {
			return "", "", false, nil
		}
		k := j - 1
		if k == i {
			k--
		}
		lower, upper = pos(k), items[j].Position
	case c.AfterID != "":
		j := indexOf(items, c.AfterID)
		if j < 0 {
			return "", "", false, fmt.Errorf("anchor %s: %w", c.AfterID, store.ErrNotFound)
		}
		if j == i-1 {
			return "", "", false, nil
		}
		k := j + 1
		if k == i {
			k++
		}
		lower, upper = items[j].Position, pos(k)
	case c.Hint == command.HintUp:
		if i == 0 {
			return "", "", false, nil
		}
		lower, upper = pos(i-2), items[i-1].Position
	case c.Hint == command.HintDown:
		if i == last {
			return "", "", false, nil
		}
		lower, upper = items[i+1].Position, pos(i+2)
	case c.Hint == command.HintTop:
		if i == 0 {
			return "", "", false, nil
		}
		upper = items[0].Position
	case c.Hint == command.HintBottom:
		if i == last {
			return "", "", false, nil
		}
		lower = items[last].Position
	}
	if lower == "" && upper == "" {
		return "", "", false, nil
	}
	return lower, upper, true, nil
}

func (e *Executor) ChangeDescription(ctx context.Context, c command.ChangeDescription) (*command.Result, error) {
	at, err := e.store.UpdateDescription(ctx, c.ItemID, c.ListID, c.Description)
	if err != nil {
		return nil, storageErr("update description", err)
	}
	return command.NewResult(c, command.DescriptionChanged{ItemID: c.ItemID, Description: c.Description, UpdatedAt: at})
}

func (e *Executor) TransitionStatus(ctx context.Context, c command.TransitionStatus) (*command.Result, error) {
	if !todo.IsValidTransition(c.From, c.To) {
		return nil, fmt.Errorf("%w: %s -> %s for item %s", ErrInvalidTransition, c.From, c.To, c.ItemID)
	}
	at, err := e.store.CompareAndSetStatus(ctx, c.ItemID, c.ListID, c.From, c.To)
	if err != nil {
		return nil, storageErr("compare and set status", err)
	}
	return command.NewResult(c, command.StatusChanged{ItemID: c.ItemID, Status: c.To, UpdatedAt: at})
}

func (e *Executor) FetchAll(ctx context.Context, c command.FetchAll) (*command.Result, error) {
	f, err := e.filters.get(c.Filter)
	if err != nil {
		return nil, err
	}
	items, err := e.store.ListItems(ctx, c.ListID)
	if err != nil {
		return nil, storageErr("list items", err)
	}
	out := items[:0]
	for _, it := range items {
		if f.Match(it) {
			out = append(out, it)
		}
	}
	return command.NewResult(c, out)
}
