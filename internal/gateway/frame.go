package gateway

import (
	"encoding/json"

	"github.com/rzbill/listsync/internal/command"
)

// Frame is one websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ResultData is the data of a result frame.
type ResultData struct {
	ListID    string          `json:"listId"`
	CommandID string          `json:"commandId,omitempty"`
	Results   json.RawMessage `json:"results"`
}

// resultFrame renders res for the wire. Error results carry their payload as
// data directly.
func resultFrame(res *command.Result) ([]byte, error) {
	data := res.Results
	if res.Event != command.EventError {
		var err error
		data, err = json.Marshal(ResultData{ListID: res.ListID, CommandID: res.CommandID, Results: res.Results})
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Frame{Event: res.Event, Data: data})
}

// errorFrame renders an error frame for the sender of a rejected frame.
func errorFrame(commandID string, cause error) []byte {
	res := command.Rejection(command.Meta{CommandID: commandID}, cause)
	b, _ := json.Marshal(Frame{Event: command.EventError, Data: res.Results})
	return b
}
