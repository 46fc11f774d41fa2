package command

import (
	"encoding/json"
	"fmt"
)

// Envelope is the transport form of a command.
type Envelope struct {
	Kind      Kind            `json:"kind"`
	ListID    string          `json:"listId"`
	CommandID string          `json:"commandId"`
	IssuedBy  string          `json:"issuedBy,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	ConnID    string          `json:"connId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode marshals cmd into an envelope.
func Encode(cmd Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", cmd.Kind(), err)
	}
	m := cmd.Metadata()
	return json.Marshal(Envelope{
		Kind:      cmd.Kind(),
		ListID:    m.ListID,
		CommandID: m.CommandID,
		IssuedBy:  m.IssuedBy,
		Origin:    m.Origin,
		ConnID:    m.ConnID,
		Payload:   payload,
	})
}

// Decode parses an envelope into its typed command.
func Decode(b []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	meta := Meta{
		ListID:    env.ListID,
		CommandID: env.CommandID,
		IssuedBy:  env.IssuedBy,
		Origin:    env.Origin,
		ConnID:    env.ConnID,
	}
	var (
		cmd Command
		err error
	)
	switch env.Kind {
	case KindCreateItem:
		var c CreateItem
		err = unmarshalPayload(env.Payload, &c)
		c.Meta = meta
		cmd = c
	case KindReposition:
		var c Reposition
		err = unmarshalPayload(env.Payload, &c)
		c.Meta = meta
		cmd = c
	case KindChangeDescription:
		var c ChangeDescription
		err = unmarshalPayload(env.Payload, &c)
		c.Meta = meta
		cmd = c
	case KindTransitionStatus:
		var c TransitionStatus
		err = unmarshalPayload(env.Payload, &c)
		c.Meta = meta
		cmd = c
	case KindFetchAll:
		var c FetchAll
		err = unmarshalPayload(env.Payload, &c)
		c.Meta = meta
		cmd = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return cmd, nil
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
