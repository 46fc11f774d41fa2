package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the listsync client.
// It registers the user, list, todo and watch command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "listsync",
		Short: "listsync client commands",
	}
	AddCommands(root, baseURL)
	return root
}

// AddCommands registers the client command groups on root.
func AddCommands(root *cobra.Command, baseURL BaseURLFunc) {
	root.AddCommand(
		NewUserCommand(baseURL),
		NewListCommand(baseURL),
		NewTodoCommand(baseURL),
		NewWatchCommand(baseURL),
	)
}
