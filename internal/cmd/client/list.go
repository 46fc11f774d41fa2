package client

import (
	"github.com/spf13/cobra"
)

// NewListCommand constructs the `list` command group.
func NewListCommand(baseURL BaseURLFunc) *cobra.Command {
	listCmd := &cobra.Command{Use: "list", Short: "List operations"}

	lsCmd := &cobra.Command{
		Use:     "ls",
		Short:   "Show your lists",
		Aliases: []string{"all"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := tokenFrom(cmd)
			if err != nil {
				return err
			}
			lists, err := getTransport(baseURL).Lists(cmd.Context(), tok)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lists)
		},
	}
	addTokenFlag(lsCmd)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := tokenFrom(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			l, err := getTransport(baseURL).CreateList(cmd.Context(), tok, name)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), l)
		},
	}
	createCmd.Flags().String("name", "", "List name")
	addTokenFlag(createCmd)

	listCmd.AddCommand(lsCmd, createCmd)
	return listCmd
}
