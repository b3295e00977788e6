package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/payflow/payflow/internal/app/dto"
	"github.com/payflow/payflow/internal/core/checkpoint"
	"github.com/payflow/payflow/pkg/payflow"
)

func (c *CLI) newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the saved flow as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := payflow.Open(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.Workspace().Load(cmd.Context())
			if errors.Is(err, dto.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return nil
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.State)
		},
	}
}

func (c *CLI) newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Save the default payment flow, replacing any saved flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := payflow.Open(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			out, err := rt.Workspace().Save(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s under key %q\n", out.Message, out.Key)
			return nil
		},
	}
}

func (c *CLI) newListCmd() *cobra.Command {
	var filter checkpoint.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved flows held by the storage backend, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := payflow.Open(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			saved, err := rt.Workspace().SavedFlows(cmd.Context(), filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(saved) == 0 {
				fmt.Fprintln(out, "No saved flows")
				return nil
			}
			for _, s := range saved {
				fmt.Fprintf(out, "%-24s %s  %s/%s  %d bytes\n",
					s.Key, s.SavedAt.Format(time.RFC3339), s.Codec, s.Compression, s.Bytes)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.KeyPrefix, "prefix", "", "only list keys with this prefix")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of flows to list (0 for all)")
	return cmd
}

func (c *CLI) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [key]",
		Short: "Delete a saved flow (default: the configured snapshot key)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *c.cfg
			if len(args) == 1 {
				cfg.Storage.SnapshotKey = args[0]
			}
			rt, err := payflow.Open(cmd.Context(), &cfg, c.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.Workspace().DiscardSaved(cmd.Context())
			if errors.Is(err, dto.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (key %q)\n", res.Message, cfg.Storage.SnapshotKey)
			return nil
		},
	}
}
