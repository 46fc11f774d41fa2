package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/rzbill/listsync/internal/todo"
)

// Inbound event names.
const (
	EventFetchList             = "fetch_list"
	EventCreateTodo            = "create_todo"
	EventUpdateTodoDescription = "update_todo_description"
	EventTransitionTodoStatus  = "transition_todo_status"
	EventMoveTodo              = "move_todo"
)

// EventError is sent to a single connection when its frame was rejected.
const EventError = "error"

// ResultEvent returns the outbound event name for a kind.
func ResultEvent(k Kind) string {
	switch k {
	case KindFetchAll:
		return EventFetchList + "_result"
	case KindCreateItem:
		return EventCreateTodo + "_result"
	case KindChangeDescription:
		return EventUpdateTodoDescription + "_result"
	case KindTransitionStatus:
		return EventTransitionTodoStatus + "_result"
	case KindReposition:
		return EventMoveTodo + "_result"
	}
	return string(k) + "_result"
}

const idPattern = `^[A-Za-z0-9_-]{1,128}$`

var schemas = map[string]string{
	EventFetchList: `{
		"type": "object",
		"required": ["listId"],
		"properties": {
			"listId": {"type": "string", "pattern": "` + idPattern + `"},
			"commandId": {"type": "string", "minLength": 1, "maxLength": 128},
			"filter": {"type": "string", "maxLength": 1024}
		}
	}`,
	EventCreateTodo: `{
		"type": "object",
		"required": ["listId"],
		"properties": {
			"listId": {"type": "string", "pattern": "` + idPattern + `"},
			"commandId": {"type": "string", "minLength": 1, "maxLength": 128},
			"todoId": {"type": "string", "pattern": "` + idPattern + `"},
			"description": {"type": "string", "maxLength": 4096}
		}
	}`,
	EventUpdateTodoDescription: `{
		"type": "object",
		"required": ["listId", "todoId", "description"],
		"properties": {
			"listId": {"type": "string", "pattern": "` + idPattern + `"},
			"commandId": {"type": "string", "minLength": 1, "maxLength": 128},
			"todoId": {"type": "string", "pattern": "` + idPattern + `"},
			"description": {"type": "string", "maxLength": 4096}
		}
	}`,
	EventTransitionTodoStatus: `{
		"type": "object",
		"required": ["listId", "todoId", "fromStatus", "toStatus"],
		"properties": {
			"listId": {"type": "string", "pattern": "` + idPattern + `"},
			"commandId": {"type": "string", "minLength": 1, "maxLength": 128},
			"todoId": {"type": "string", "pattern": "` + idPattern + `"},
			"fromStatus": {"enum": ["pending", "active", "completed"]},
			"toStatus": {"enum": ["pending", "active", "completed"]}
		}
	}`,
	EventMoveTodo: `{
		"type": "object",
		"required": ["listId", "todoId"],
		"properties": {
			"listId": {"type": "string", "pattern": "` + idPattern + `"},
			"commandId": {"type": "string", "minLength": 1, "maxLength": 128},
			"todoId": {"type": "string", "pattern": "` + idPattern + `"},
			"position": {"enum": ["up", "down", "top", "bottom"]},
			"before": {"type": "string", "pattern": "` + idPattern + `"},
			"after": {"type": "string", "pattern": "` + idPattern + `"}
		},
		"oneOf": [
			{"required": ["position"]},
			{"required": ["before"]},
			{"required": ["after"]}
		]
	}`,
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		out := make(map[string]*jsonschema.Schema, len(schemas))
		for name, src := range schemas {
			url := "mem://events/" + name + ".json"
			if err := c.AddResource(url, strings.NewReader(src)); err != nil {
				compileErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
			s, err := c.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			out[name] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

// inbound is the union of fields any inbound event may carry.
type inbound struct {
	ListID      string `json:"listId"`
	CommandID   string `json:"commandId"`
	TodoID      string `json:"todoId"`
	Description string `json:"description"`
	FromStatus  string `json:"fromStatus"`
	ToStatus    string `json:"toStatus"`
	Position    string `json:"position"`
	Before      string `json:"before"`
	After       string `json:"after"`
	Filter      string `json:"filter"`
}

// FromEvent validates an inbound frame and builds the command it asks for.
// meta supplies the caller identity; ListID and CommandID come from data,
// with CommandID falling back to meta.CommandID and then to a fresh uuid.
func FromEvent(event string, data json.RawMessage, meta Meta) (Command, error) {
	all, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	schema, ok := all[event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if len(data) == 0 {
		return nil, invalid("", "data is required")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, invalid("", "malformed json")
	}
	if err := schema.Validate(doc); err != nil {
		return nil, schemaError(err)
	}

	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, invalid("", err.Error())
	}
	meta.ListID = in.ListID
	if in.CommandID != "" {
		meta.CommandID = in.CommandID
	}
	if meta.CommandID == "" {
		meta.CommandID = uuid.NewString()
	}

	var cmd Command
	switch event {
	case EventFetchList:
		cmd = FetchAll{Meta: meta, Filter: in.Filter}
	case EventCreateTodo:
		id := in.TodoID
		if id == "" {
			id = uuid.NewString()
		}
		cmd = CreateItem{Meta: meta, ItemID: id, Description: in.Description}
	case EventUpdateTodoDescription:
		cmd = ChangeDescription{Meta: meta, ItemID: in.TodoID, Description: in.Description}
	case EventTransitionTodoStatus:
		cmd = TransitionStatus{Meta: meta, ItemID: in.TodoID, From: todo.Status(in.FromStatus), To: todo.Status(in.ToStatus)}
	case EventMoveTodo:
		cmd = Reposition{Meta: meta, ItemID: in.TodoID, Hint: Hint(in.Position), BeforeID: in.Before, AfterID: in.After}
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// schemaError reduces a schema failure to its first leaf cause.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return invalid("", err.Error())
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	path := strings.TrimPrefix(leaf.InstanceLocation, "/")
	return invalid(strings.ReplaceAll(path, "/", "."), leaf.Message)
}
