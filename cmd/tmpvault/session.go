// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type sessionView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"created"`
}

func sessionCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions",
	}
	cmd.AddCommand(
		sessionCreateCmd(flags),
		sessionGetCmd(flags),
		sessionDeleteCmd(flags),
	)
	return cmd
}

func sessionCreateCmd(flags *globalFlags) *cobra.Command {
	var (
		userID string
		data   string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			var payload []byte
			if data != "" {
				payload = []byte(data)
			}
			id, err := c.CreateSession(cmd.Context(), userID, payload)
			if err != nil {
				return err
			}
			return flags.print(cmd, map[string]any{"success": true, "sessionId": id}, func() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User the session belongs to (required)")
	cmd.Flags().StringVar(&data, "data", "", "Payload stored with the session, returned as given")
	cmd.MarkFlagRequired("user") //nolint:errcheck,gosec
	return cmd
}

func sessionGetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a session after verifying its key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			sess, err := c.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			view := sessionView{ID: sess.ID, UserID: sess.UserID, CreatedAt: sess.CreatedAt}
			switch {
			case json.Valid(sess.Payload):
				view.Data = json.RawMessage(sess.Payload)
			case len(sess.Payload) > 0:
				view.Data = string(sess.Payload)
			}
			return flags.print(cmd, view, func() {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "ID:      %s\n", sess.ID)
				fmt.Fprintf(w, "User:    %s\n", sess.UserID)
				fmt.Fprintf(w, "Created: %s\n", sess.CreatedAt.Format(time.RFC3339))
				if len(sess.Payload) > 0 {
					fmt.Fprintf(w, "Data:    %s\n", sess.Payload)
				}
			})
		},
	}
}

func sessionDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session and its verification key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			if err := c.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			return flags.print(cmd, map[string]any{"success": true}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s deleted\n", args[0])
			})
		},
	}
}
