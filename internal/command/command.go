package command

import (
	"context"

	"github.com/rzbill/listsync/internal/todo"
)

// Kind names a command variant on the backbone and in the journal.
type Kind string

const (
	KindCreateItem        Kind = "createItem"
	KindReposition        Kind = "reposition"
	KindChangeDescription Kind = "changeDescription"
	KindTransitionStatus  Kind = "transitionStatus"
	KindFetchAll          Kind = "fetchAll"
)

// Meta is carried by every command.
type Meta struct {
	ListID    string `json:"-"`
	CommandID string `json:"-"`
	// IssuedBy is the authenticated user id.
	IssuedBy string `json:"-"`
	// Origin is the node id of the gateway that accepted the command.
	Origin string `json:"-"`
	// ConnID is the originating websocket connection, if any.
	ConnID string `json:"-"`
}

// Metadata returns the shared fields.
func (m Meta) Metadata() Meta { return m }

func (m Meta) validate() error {
	if m.ListID == "" {
		return invalid("listId", "is required")
	}
	if m.CommandID == "" {
		return invalid("commandId", "is required")
	}
	return nil
}

// Handler executes each variant. A nil Result with a nil error means the
// command finished without anything to announce.
type Handler interface {
	CreateItem(ctx context.Context, c CreateItem) (*Result, error)
	Reposition(ctx context.Context, c Reposition) (*Result, error)
	ChangeDescription(ctx context.Context, c ChangeDescription) (*Result, error)
	TransitionStatus(ctx context.Context, c TransitionStatus) (*Result, error)
	FetchAll(ctx context.Context, c FetchAll) (*Result, error)
}

// Command is one list mutation or read. The set of implementations is closed.
type Command interface {
	Metadata() Meta
	Kind() Kind
	Validate() error
	Apply(ctx context.Context, h Handler) (*Result, error)
	sealed()
}

// CreateItem appends a new item after the current last one.
type CreateItem struct {
	Meta
	ItemID      string `json:"itemId"`
	Description string `json:"description,omitempty"`
}

func (CreateItem) Kind() Kind { return KindCreateItem }
func (CreateItem) sealed()    {}

func (c CreateItem) Validate() error {
	if err := c.Meta.validate(); err != nil {
		return err
	}
	if c.ItemID == "" {
		return invalid("todoId", "is required")
	}
	return nil
}

func (c CreateItem) Apply(ctx context.Context, h Handler) (*Result, error) {
	return h.CreateItem(ctx, c)
}

// Hint is a relative move resolved against the list at execution time.
type Hint string

const (
	HintUp     Hint = "up"
	HintDown   Hint = "down"
	HintTop    Hint = "top"
	HintBottom Hint = "bottom"
)

// Reposition moves an item. Either Hint or one of BeforeID/AfterID is set;
// BeforeID places the item directly before that item, AfterID directly after.
type Reposition struct {
	Meta
	ItemID   string `json:"itemId"`
	Hint     Hint   `json:"hint,omitempty"`
	BeforeID string `json:"beforeId,omitempty"`
	AfterID  string `json:"afterId,omitempty"`
}

func (Reposition) Kind() Kind { return KindReposition }
func (Reposition) sealed()    {}

func (c Reposition) Validate() error {
	if err := c.Meta.validate(); err != nil {
		return err
	}
	if c.ItemID == "" {
		return invalid("todoId", "is required")
	}
	set := 0
	if c.Hint != "" {
		switch c.Hint {
		case HintUp, HintDown, HintTop, HintBottom:
		default:
			return invalid("position", "must be one of up, down, top, bottom")
		}
		set++
	}
	if c.BeforeID != "" {
		set++
	}
	if c.AfterID != "" {
		set++
	}
	if set != 1 {
		return invalid("position", "exactly one of position, before, after is required")
	}
	if c.BeforeID == c.ItemID || c.AfterID == c.ItemID {
		return invalid("position", "an item cannot be placed relative to itself")
	}
	return nil
}

func (c Reposition) Apply(ctx context.Context, h Handler) (*Result, error) {
	return h.Reposition(ctx, c)
}

// ChangeDescription replaces an item's text.
type ChangeDescription struct {
	Meta
	ItemID      string `json:"itemId"`
	Description string `json:"description"`
}

func (ChangeDescription) Kind() Kind { return KindChangeDescription }
func (ChangeDescription) sealed()    {}

func (c ChangeDescription) Validate() error {
	if err := c.Meta.validate(); err != nil {
		return err
	}
	if c.ItemID == "" {
		return invalid("todoId", "is required")
	}
	return nil
}

func (c ChangeDescription) Apply(ctx context.Context, h Handler) (*Result, error) {
	return h.ChangeDescription(ctx, c)
}

// TransitionStatus moves an item from one status to another. The write only
// lands if the item is still in From.
type TransitionStatus struct {
	Meta
	ItemID string      `json:"itemId"`
	From   todo.Status `json:"from"`
	To     todo.Status `json:"to"`
}

func (TransitionStatus) Kind() Kind { return KindTransitionStatus }
func (TransitionStatus) sealed()    {}

// Validate checks shape only; whether the move is allowed is decided in the
// lane so the failure is logged alongside the list's other commands.
func (c TransitionStatus) Validate() error {
	if err := c.Meta.validate(); err != nil {
		return err
	}
	if c.ItemID == "" {
		return invalid("todoId", "is required")
	}
	if !c.From.Valid() {
		return invalid("fromStatus", "unknown status")
	}
	if !c.To.Valid() {
		return invalid("toStatus", "unknown status")
	}
	return nil
}

func (c TransitionStatus) Apply(ctx context.Context, h Handler) (*Result, error) {
	return h.TransitionStatus(ctx, c)
}

// FetchAll reads the whole list and answers only the requester. Filter is an
// optional CEL expression over item fields.
type FetchAll struct {
	Meta
	Filter string `json:"filter,omitempty"`
}

func (FetchAll) Kind() Kind { return KindFetchAll }
func (FetchAll) sealed()    {}

func (c FetchAll) Validate() error { return c.Meta.validate() }

func (c FetchAll) Apply(ctx context.Context, h Handler) (*Result, error) {
	return h.FetchAll(ctx, c)
}
