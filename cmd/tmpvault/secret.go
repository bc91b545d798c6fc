// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/carabiner-dev/tmpvault/options"
)

func secretCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage temporary secrets",
	}
	cmd.AddCommand(
		secretStoreCmd(flags),
		secretListCmd(flags),
		secretGetCmd(flags),
		secretDeleteCmd(flags),
	)
	return cmd
}

func secretStoreCmd(flags *globalFlags) *cobra.Command {
	var ttl int64
	cmd := &cobra.Command{
		Use:   "store <name> [value]",
		Short: "Encrypt and store a secret, reading the value from stdin when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value []byte
			if len(args) == 2 && args[1] != "-" {
				value = []byte(args[1])
			} else {
				var err error
				value, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading secret from stdin: %w", err)
				}
			}

			var fns []options.StoreOptsFn
			if cmd.Flags().Changed("ttl") {
				fns = append(fns, options.WithTTL(ttl))
			}

			c, err := flags.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			id, err := c.Store(cmd.Context(), args[0], value, fns...)
			if err != nil {
				return err
			}
			return flags.print(cmd, map[string]any{"success": true, "secretId": id}, func() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			})
		},
	}
	cmd.Flags().Int64Var(&ttl, "ttl", 0, "Seconds until the secret expires (default from the server)")
	return cmd
}

func secretListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List secret metadata, values are never shown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			infos, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			return flags.print(cmd, map[string]any{"secrets": infos, "count": len(infos)}, func() {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tCREATED\tEXPIRES\tSTATUS")
				for i := range infos {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						infos[i].ID, infos[i].Name,
						infos[i].CreatedAt.Format(time.RFC3339),
						infos[i].ExpiresAt.Format(time.RFC3339),
						infos[i].Status,
					)
				}
				tw.Flush() //nolint:errcheck,gosec
			})
		},
	}
}

func secretGetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Decrypt a secret and print its value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			sec, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			view := map[string]any{
				"id":      sec.ID,
				"name":    sec.Name,
				"value":   string(sec.Value),
				"created": sec.CreatedAt,
				"expires": sec.ExpiresAt,
			}
			return flags.print(cmd, view, func() {
				cmd.OutOrStdout().Write(sec.Value) //nolint:errcheck,gosec
				fmt.Fprintln(cmd.OutOrStdout())
			})
		},
	}
}

func secretDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a secret before it expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return flags.print(cmd, map[string]any{"success": true}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Secret %s deleted\n", args[0])
			})
		},
	}
}
