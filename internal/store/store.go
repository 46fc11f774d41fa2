package store

import (
	"context"
	"errors"
	"time"

	"github.com/rzbill/listsync/internal/todo"
)

var (
	// ErrNotFound is returned when a read or conditional write matched no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned on unique constraint violations.
	ErrConflict = errors.New("store: conflict")
)

// NewItem carries the fields of an item to insert.
type NewItem struct {
	ID          string
	ListID      string
	CreatedBy   string
	Position    string
	Description string
}

// Store is the storage collaborator used by lanes and the HTTP API.
type Store interface {
	// MaxOrderKey returns the greatest position in the list, or "" when empty.
	MaxOrderKey(ctx context.Context, listID string) (string, error)
	InsertItem(ctx context.Context, it NewItem) (todo.Item, error)
	UpdateDescription(ctx context.Context, itemID, listID, text string) (time.Time, error)
	// CompareAndSetStatus writes to only when the stored status equals from.
	CompareAndSetStatus(ctx context.Context, itemID, listID string, from, to todo.Status) (time.Time, error)
	UpdatePosition(ctx context.Context, itemID, listID, position string) (time.Time, error)
	// ListItems returns the list's items in ascending position order.
	ListItems(ctx context.Context, listID string) ([]todo.Item, error)
	GetItem(ctx context.Context, itemID, listID string) (todo.Item, error)

	CreateUser(ctx context.Context, username, passwordHash string) (todo.User, error)
	// UserByUsername returns the user and its password hash.
	UserByUsername(ctx context.Context, username string) (todo.User, string, error)
	GetUser(ctx context.Context, userID string) (todo.User, error)
	// ListUsers returns every user ordered by creation time.
	ListUsers(ctx context.Context) ([]todo.User, error)
	CreateList(ctx context.Context, ownerID, name string) (todo.List, error)
	GetList(ctx context.Context, listID string) (todo.List, error)
	ListsByOwner(ctx context.Context, ownerID string) ([]todo.List, error)

	Close() error
}
