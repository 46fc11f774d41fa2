package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewUserCommand constructs the `user` command group.
func NewUserCommand(baseURL BaseURLFunc) *cobra.Command {
	userCmd := &cobra.Command{Use: "user", Short: "Account operations"}
	userCmd.AddCommand(
		newUserRegisterCommand(baseURL),
		newUserLoginCommand(baseURL),
	)
	return userCmd
}

func newUserRegisterCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and print its token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			s, err := getTransport(baseURL).Register(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().String("username", "", "Username")
	cmd.Flags().String("password", "", "Password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserLoginCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			s, err := getTransport(baseURL).Login(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			quiet, _ := cmd.Flags().GetBool("quiet")
			if quiet {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), s.Token)
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().String("username", "", "Username")
	cmd.Flags().String("password", "", "Password")
	cmd.Flags().BoolP("quiet", "q", false, "Print only the token")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
