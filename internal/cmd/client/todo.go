package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	transports "github.com/rzbill/listsync/internal/cmd/client/transports"
)

// errNoResult is returned when a websocket command produced no frame for its
// command id before the timeout. Stale transitions are dropped silently, so
// this is not necessarily a failure.
var errNoResult = errors.New("no result before timeout")

// dialFunc opens a watcher; replaced in tests.
var dialFunc = func(ctx context.Context, base, token, listID string) (transports.Watcher, error) {
	return transports.DialWatch(ctx, base, token, listID)
}

// NewTodoCommand constructs the `todo` command group.
func NewTodoCommand(baseURL BaseURLFunc) *cobra.Command {
	todoCmd := &cobra.Command{Use: "todo", Short: "Item operations"}
	todoCmd.PersistentFlags().String("list", "", "List id")
	todoCmd.AddCommand(
		newTodoAddCommand(baseURL),
		newTodoEditCommand(baseURL),
		newTodoStatusCommand(baseURL),
		newTodoMoveCommand(baseURL),
	)
	return todoCmd
}

// newTodoAddCommand submits a create over REST.
func newTodoAddCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item (REST, returns once accepted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := tokenFrom(cmd)
			if err != nil {
				return err
			}
			listID, _ := cmd.Flags().GetString("list")
			desc, _ := cmd.Flags().GetString("description")
			a, err := getTransport(baseURL).CreateTodo(cmd.Context(), tok, listID, desc)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), a)
		},
	}
	cmd.Flags().StringP("description", "d", "", "Item description")
	addTokenFlag(cmd)
	return cmd
}

func newTodoEditCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Change an item's description",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			desc, _ := cmd.Flags().GetString("description")
			return runWSCommand(cmd, baseURL, "update_todo_description", map[string]any{
				"todoId":      id,
				"description": desc,
			})
		},
	}
	cmd.Flags().String("id", "", "Item id")
	cmd.Flags().StringP("description", "d", "", "New description")
	addWSFlags(cmd)
	return cmd
}

func newTodoStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Transition an item's status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			return runWSCommand(cmd, baseURL, "transition_todo_status", map[string]any{
				"todoId":     id,
				"fromStatus": from,
				"toStatus":   to,
			})
		},
	}
	cmd.Flags().String("id", "", "Item id")
	cmd.Flags().String("from", "", "Expected current status: pending|active|completed")
	cmd.Flags().String("to", "", "Target status: pending|active|completed")
	addWSFlags(cmd)
	return cmd
}

func newTodoMoveCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Reposition an item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data := map[string]any{}
			id, _ := cmd.Flags().GetString("id")
			data["todoId"] = id
			for _, f := range []string{"position", "before", "after"} {
				if v, _ := cmd.Flags().GetString(f); v != "" {
					data[f] = v
				}
			}
			return runWSCommand(cmd, baseURL, "move_todo", data)
		},
	}
	cmd.Flags().String("id", "", "Item id")
	cmd.Flags().String("position", "", "Relative move: up|down|top|bottom")
	cmd.Flags().String("before", "", "Place directly before this item id")
	cmd.Flags().String("after", "", "Place directly after this item id")
	addWSFlags(cmd)
	return cmd
}

func addWSFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", 5*time.Second, "How long to wait for the result")
	addTokenFlag(cmd)
}

// runWSCommand sends event on the list's websocket and prints the first
// frame that carries the same command id.
func runWSCommand(cmd *cobra.Command, baseURL BaseURLFunc, event string, data map[string]any) error {
	tok, err := tokenFrom(cmd)
	if err != nil {
		return err
	}
	listID, _ := cmd.Flags().GetString("list")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	w, err := dialFunc(ctx, baseURL(), tok, listID)
	if err != nil {
		return err
	}
	defer w.Close()
	stop := context.AfterFunc(ctx, func() { _ = w.Close() })
	defer stop()

	commandID := uuid.NewString()
	data["listId"] = listID
	data["commandId"] = commandID
	if err := w.Send(event, data); err != nil {
		return err
	}
	for {
		f, err := w.Next()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s %s: %w", event, commandID, errNoResult)
			}
			return err
		}
		var meta struct {
			CommandID string `json:"commandId"`
			Message   string `json:"message"`
		}
		_ = json.Unmarshal(f.Data, &meta)
		if meta.CommandID != commandID {
			continue
		}
		if f.Event == "error" {
			return fmt.Errorf("%s rejected: %s", event, meta.Message)
		}
		return printJSON(cmd.OutOrStdout(), f)
	}
}
