package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cattlecloud.net/go/bizdash/internal/directory"
	"cattlecloud.net/go/bizdash/middles/identity"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

func newUsersCmd(o *options) *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Manage dashboard users",
		Long: `Manage the directory of users allowed to sign in.

A user signs in with an identity token carrying their email address; the
role recorded here decides what the dashboard shows them.`,
	}

	users.AddCommand(
		newUsersAddCmd(o),
		newUsersListCmd(o),
		newUsersRoleCmd(o),
		newUsersRemoveCmd(o),
	)

	return users
}

// withDirectory opens the user directory for the duration of f.
func (o *options) withDirectory(f func(*directory.Directory) error) error {
	dir, err := directory.Open(o.cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()
	return f(dir)
}

func newUsersAddCmd(o *options) *cobra.Command {
	var id, role string

	cmd := &cobra.Command{
		Use:   "add <email> <name>",
		Short: "Add a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := identity.ParseRole(role)
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}

			user := identity.User{ID: id, Email: args[0], Name: args[1], Role: r}
			return o.withDirectory(func(dir *directory.Directory) error {
				if aerr := dir.Add(cmd.Context(), user); aerr != nil {
					return aerr
				}
				o.logger.Info("user added", "user", user.ID, "role", user.Role.String())
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %s <%s> as %s\n", user.ID, user.Email, user.Role)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "user identifier (default: random uuid)")
	cmd.Flags().StringVar(&role, "role", identity.RoleEmployee.String(), "role of the user, one of "+roleNames())

	return cmd
}

func roleNames() string {
	names := make([]string, 0, 2)
	for _, r := range identity.Roles() {
		names = append(names, r.String())
	}
	return strings.Join(names, ", ")
}

func newUsersListCmd(o *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List users",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withDirectory(func(dir *directory.Directory) error {
				users, err := dir.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(users)
				}
				return renderUsers(cmd.OutOrStdout(), users)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	return cmd
}

func renderUsers(w io.Writer, users []*identity.User) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)

	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.ID, u.Email, u.Name, u.Role.String()})
	}

	table.Header([]string{"id", "email", "name", "role"})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func newUsersRoleCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "role <id> <role>",
		Short: "Change the role of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := identity.ParseRole(args[1])
			if err != nil {
				return err
			}
			return o.withDirectory(func(dir *directory.Directory) error {
				if serr := dir.SetRole(cmd.Context(), args[0], role); serr != nil {
					return fmt.Errorf("user %s: %w", args[0], serr)
				}
				o.logger.Info("user role changed", "user", args[0], "role", role.String())
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], role)
				return nil
			})
		},
	}
}

func newUsersRemoveCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a user",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withDirectory(func(dir *directory.Directory) error {
				if rerr := dir.Remove(cmd.Context(), args[0]); rerr != nil {
					return fmt.Errorf("user %s: %w", args[0], rerr)
				}
				o.logger.Info("user removed", "user", args[0])
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}
