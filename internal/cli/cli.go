// Package cli implements sheetctl, a command-line client for the user table.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dtroode/sheetkeeper/internal/model"
)

// Name is the binary name.
const Name = "sheetctl"

// ServiceFactory builds the user service when a command runs, so that
// --help works without any configuration.
type ServiceFactory func(ctx context.Context) (model.UserService, error)

// NewRootCommand returns the sheetctl command tree.
func NewRootCommand(version string, newService ServiceFactory) *cobra.Command {
	cobra.EnableCommandSorting = false

	root := &cobra.Command{
		Use:           Name,
		Version:       version,
		Short:         "Register and look up users in the shared spreadsheet",
		Long:          fmt.Sprintf(`Use "%s [command] --help" for information on a specific command`, Name),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		newRegisterCommand(newService),
		newLoginCommand(newService),
		newInitCommand(newService),
	)

	return root
}

// ExitCode maps a command error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, model.ErrInvalidInput):
		return 2
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrUserExists):
		return 3
	default:
		return 1
	}
}

func newRegisterCommand(newService ServiceFactory) *cobra.Command {
	var record model.UserRecord

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Add a new user to the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			if err := users.Register(cmd.Context(), record); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", record.Username)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&record.Username, "username", "u", "", "username, unique in the table")
	fs.StringVarP(&record.Password, "password", "p", "", "password, stored as entered")
	fs.StringVar(&record.PageID, "page-id", "", "page identifier")
	fs.StringVar(&record.AccessToken, "access-token", "", "page access token")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newLoginCommand(newService ServiceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Show the stored data of an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			record, err := users.Authenticate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Username: %s\nPassword: %s\nPageID: %s\nAccess Token: %s\n",
				record.Username, record.Password, record.PageID, record.AccessToken)
			return nil
		},
	}
}

func newInitCommand(newService ServiceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the table if it does not exist yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			snapshot, err := users.Initialize(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Table ready at revision %s with %d users\n", snapshot.Revision, snapshot.Table.Len())
			return nil
		},
	}
}
