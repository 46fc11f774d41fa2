package command

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rzbill/listsync/internal/todo"
)

// Target restricts delivery of a result to one connection on one node.
type Target struct {
	Origin string `json:"origin"`
	ConnID string `json:"connId"`
}

// Result is the single outcome of a successful command.
type Result struct {
	// Event is the outbound wire event name.
	Event     string          `json:"event"`
	ListID    string          `json:"listId"`
	CommandID string          `json:"commandId"`
	Kind      Kind            `json:"kind"`
	Target    *Target         `json:"target,omitempty"`
	Results   json.RawMessage `json:"results"`
}

// Room returns the broadcast room of the result's list.
func (r *Result) Room() string { return RoomKey(r.ListID) }

// RoomKey returns the broadcast room for a list.
func RoomKey(listID string) string { return "list:" + listID }

// DescriptionChanged is the payload of update_todo_description_result.
type DescriptionChanged struct {
	ItemID      string    `json:"todo_id"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusChanged is the payload of transition_todo_status_result.
type StatusChanged struct {
	ItemID    string      `json:"todo_id"`
	Status    todo.Status `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ItemRepositioned is the payload of move_todo_result.
type ItemRepositioned struct {
	ItemID    string    `json:"todo_id"`
	Position  string    `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewResult builds the result of cmd carrying payload. Fetches are targeted
// at the requesting connection.
func NewResult(cmd Command, payload any) (*Result, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	m := cmd.Metadata()
	res := &Result{
		Event:     ResultEvent(cmd.Kind()),
		ListID:    m.ListID,
		CommandID: m.CommandID,
		Kind:      cmd.Kind(),
		Results:   raw,
	}
	if cmd.Kind() == KindFetchAll {
		res.Target = &Target{Origin: m.Origin, ConnID: m.ConnID}
	}
	return res, nil
}

// EncodeResult marshals a result for the backbone.
func EncodeResult(r *Result) ([]byte, error) { return json.Marshal(r) }

// DecodeResult reverses EncodeResult.
func DecodeResult(b []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Message   string `json:"message"`
	CommandID string `json:"commandId,omitempty"`
	Path      string `json:"path,omitempty"`
}

// Rejection builds an error result addressed to the connection that issued
// the command described by m.
func Rejection(m Meta, cause error) *Result {
	p := ErrorPayload{Message: cause.Error(), CommandID: m.CommandID}
	var ve *ValidationError
	if errors.As(cause, &ve) {
		p.Path = ve.Path
		p.Message = ve.Message
	}
	raw, _ := json.Marshal(p)
	return &Result{
		Event:     EventError,
		ListID:    m.ListID,
		CommandID: m.CommandID,
		Target:    &Target{Origin: m.Origin, ConnID: m.ConnID},
		Results:   raw,
	}
}
