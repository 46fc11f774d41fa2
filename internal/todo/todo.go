// Package todo holds the list domain types and the status state machine.
package todo

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an Item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// DefaultDescription is used when a create command carries no text.
const DefaultDescription = "New todo"

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus validates a wire status name.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// transitions lists the allowed moves; anything absent is rejected.
var transitions = map[Status][]Status{
	StatusPending:   {StatusActive},
	StatusActive:    {StatusPending, StatusCompleted},
	StatusCompleted: {StatusActive},
}

// IsValidTransition reports whether an item may move from one status to
// another. Self transitions and unknown statuses are never valid.
func IsValidTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Item is a single todo within a list.
type Item struct {
	ID          string    `json:"id"`
	ListID      string    `json:"list_id"`
	Position    string    `json:"position"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// List owns an ordered collection of items.
type List struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an account. The password hash never leaves the store package.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
