// Package command defines the closed set of list mutations, their results,
// and the codecs that carry them between the websocket gateway, the
// backbone and the lanes.
//
// Command is a sealed interface. Execution goes through Apply, which calls
// the matching method of a Handler, so adding a variant forces every Handler
// to grow a method before the build passes.
//
//	cmd, err := command.FromEvent(command.EventCreateTodo, data, meta)
//	raw, _ := command.Encode(cmd)   // onto the backbone
//	back, _ := command.Decode(raw)  // on the hub
//	res, err := back.Apply(ctx, executor)
package command
