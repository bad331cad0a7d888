// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/turnia/turnia/internal/auth"
)

func newUserCmd(opts *globalOptions, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer user accounts",
	}
	cmd.AddCommand(newUserCreateCmd(opts, deps))
	cmd.AddCommand(newUserRevokeCmd(opts, deps))
	cmd.AddCommand(newUserEventsCmd(opts, deps))
	return cmd
}

type userCreateConfig struct {
	name          string
	lastName      string
	username      string
	email         string
	role          string
	phone         string
	passwordStdin bool
}

func newUserCreateCmd(opts *globalOptions, deps *Deps) *cobra.Command {
	cfg := &userCreateConfig{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		Long: `Register a user with the same validation as self-service
registration. The password is read from the first line of stdin.`,
		Example: `  printf '%s\n' "$PASSWORD" | turnia user create --username ana --email ana@example.com \
    --name Ana --last-name Ruiz --role admin --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cfg.passwordStdin {
				return oops.Code("PASSWORD_REQUIRED").Errorf("--password-stdin is required")
			}
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			in := auth.RegisterInput{
				Name:            cfg.name,
				LastName:        cfg.lastName,
				Username:        cfg.username,
				Email:           cfg.email,
				Password:        password,
				ConfirmPassword: password,
				Role:            auth.Role(cfg.role),
			}
			if cfg.phone != "" {
				in.Phone = &cfg.phone
			}
			return withApp(cmd, opts, deps, func(cmd *cobra.Command, a *app) error {
				user, err := a.service.Register(cmd.Context(), in)
				if err != nil {
					return err
				}
				cmd.Printf("Created user %s (%s, %s)\n", user.ID, user.Username, user.Role)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.name, "name", "", "first name")
	f.StringVar(&cfg.lastName, "last-name", "", "last name")
	f.StringVar(&cfg.username, "username", "", "unique username")
	f.StringVar(&cfg.email, "email", "", "unique email address")
	f.StringVar(&cfg.role, "role", string(auth.RoleClient), "client, business_owner, employee or admin")
	f.StringVar(&cfg.phone, "phone", "", "phone number")
	f.BoolVar(&cfg.passwordStdin, "password-stdin", false, "read the password from stdin")

	return cmd
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("no password on stdin")
	}
	return password, nil
}

func newUserRevokeCmd(opts *globalOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke USER_ID",
		Short: "Revoke every active session of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, deps, func(cmd *cobra.Command, a *app) error {
				n, err := a.service.LogoutAll(cmd.Context(), userID)
				if err != nil {
					return err
				}
				cmd.Printf("Revoked %d session(s) for user %s\n", n, userID)
				return nil
			})
		},
	}
}

type userEventsConfig struct {
	limit      int
	jsonOutput bool
}

func newUserEventsCmd(opts *globalOptions, deps *Deps) *cobra.Command {
	cfg := &userEventsConfig{}

	cmd := &cobra.Command{
		Use:   "events USER_ID",
		Short: "List a user's recent security events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, deps, func(cmd *cobra.Command, a *app) error {
				events, err := a.audit.ListForUser(cmd.Context(), userID, cfg.limit)
				if err != nil {
					return err
				}
				if cfg.jsonOutput {
					out, err := formatEventsJSON(events)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
					return nil
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), formatEventsTable(events))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&cfg.limit, "limit", 20, "maximum number of events")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output events as JSON")

	return cmd
}

func parseUserID(s string) (ulid.ULID, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return ulid.ULID{}, oops.Code("INVALID_USER_ID").With("input", s).Wrap(err)
	}
	return id, nil
}

type eventView struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func formatEventsJSON(events []auth.SecurityEvent) (string, error) {
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, eventView{
			ID:        ev.ID.String(),
			Type:      string(ev.Type),
			Detail:    ev.Detail,
			CreatedAt: ev.CreatedAt.UTC(),
		})
	}
	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return "", oops.Code("EVENTS_ENCODE_FAILED").Wrap(err)
	}
	return string(data) + "\n", nil
}

func formatEventsTable(events []auth.SecurityEvent) string {
	if len(events) == 0 {
		return "No events\n"
	}
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tEVENT\tDETAIL")
	for _, ev := range events {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			ev.CreatedAt.UTC().Format(time.RFC3339), ev.Type, formatDetail(ev.Detail))
	}
	_ = w.Flush()
	return buf.String()
}

// formatDetail renders detail as sorted key=value pairs.
func formatDetail(detail map[string]any) string {
	if len(detail) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(detail))
	for _, k := range slices.Sorted(maps.Keys(detail)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, detail[k]))
	}
	return strings.Join(parts, " ")
}
