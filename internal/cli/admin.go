package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/commonground/progression/internal/app/engagement"
	"github.com/commonground/progression/internal/daemon"
	"github.com/commonground/progression/internal/domain"
)

// ─── Administration ─────────────────────────────────────────────────────────
// Operator commands: manual credits, refunds, item grants and ledger audits.

func init() {
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(grantCmd)
	grantCmd.AddCommand(grantPointsCmd)
	grantCmd.AddCommand(grantItemCmd)
	rootCmd.AddCommand(refundCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(redeliverCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	for _, c := range []*cobra.Command{grantPointsCmd, grantItemCmd, refundCmd} {
		c.Flags().StringP("reason", "r", "", "Reason recorded with the change (required)")
		c.MarkFlagRequired("reason")
	}
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
}

var openCmd = &cobra.Command{
	Use:   "open USER",
	Short: "Create a zero-balance account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			acct, created, err := eng.OpenAccount(ctx, args[0])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), acct, func(w io.Writer) {
				if created {
					fmt.Fprintf(w, "✅ Opened account %s.\n", acct.UserID)
					return
				}
				fmt.Fprintf(w, "Account %s already exists. Balance: %d\n", acct.UserID, acct.Balance)
			})
		})
	},
}

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Give points or items on an operator's behalf",
}

var grantPointsCmd = &cobra.Command{
	Use:   "points USER AMOUNT",
	Short: "Credit points as ADMIN_GIVEN",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			bal, err := eng.AdminCredit(ctx, args[0], amount, reason)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), map[string]interface{}{"user_id": args[0], "balance": bal}, func(w io.Writer) {
				fmt.Fprintf(w, "✅ Gave %d points to %s. Balance: %d\n", amount, args[0], bal)
			})
		})
	},
}

var grantItemCmd = &cobra.Command{
	Use:   "item USER ITEM",
	Short: "Unlock an item without charging for it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			rec, already, err := eng.AdminUnlock(ctx, args[0], args[1], reason)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rec, func(w io.Writer) {
				if already {
					fmt.Fprintf(w, "%s already owns %s.\n", args[0], rec.ItemID)
					return
				}
				fmt.Fprintf(w, "✅ Unlocked %s for %s.\n", rec.ItemID, args[0])
			})
		})
	},
}

var refundCmd = &cobra.Command{
	Use:   "refund USER AMOUNT",
	Short: "Return points to a user as a REFUND",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			bal, err := eng.Refund(ctx, args[0], amount, reason)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), map[string]interface{}{"user_id": args[0], "balance": bal}, func(w io.Writer) {
				fmt.Fprintf(w, "✅ Refunded %d points to %s. Balance: %d\n", amount, args[0], bal)
			})
		})
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit USER",
	Short: "Check that a balance equals the sum of its transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			rec, err := eng.Audit(ctx, args[0])
			if err != nil {
				return err
			}
			if err := emit(cmd.OutOrStdout(), rec, func(w io.Writer) {
				if rec.OK {
					fmt.Fprintf(w, "✅ %s: balance %d matches the ledger.\n", rec.UserID, rec.Cached)
					return
				}
				fmt.Fprintf(w, "❌ %s: balance %d, ledger sum %d.\n", rec.UserID, rec.Cached, rec.Computed)
			}); err != nil {
				return err
			}
			if !rec.OK {
				return fmt.Errorf("balance drift for %s", rec.UserID)
			}
			return nil
		})
	},
}

var redeliverCmd = &cobra.Command{
	Use:   "redeliver USER",
	Short: "Retry reward delivery for completed achievements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			n, err := eng.RedeliverRewards(ctx, args[0])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), map[string]interface{}{"user_id": args[0], "attempted": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Retried %d reward(s) for %s.\n", n, args[0])
			})
		})
	},
}

// ─── config ─────────────────────────────────────────────────────────────────

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config.toml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = daemon.DefaultConfigPath()
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := daemon.Save(path, daemon.DefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote %s\n", path)
		return nil
	},
}

func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &domain.ValidationError{Field: "amount", Reason: fmt.Sprintf("%q is not a whole number", s)}
	}
	return n, nil
}
