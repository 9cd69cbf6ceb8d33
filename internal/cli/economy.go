package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/commonground/progression/internal/app/engagement"
	"github.com/commonground/progression/internal/domain"
	"github.com/commonground/progression/internal/infra/catalog"
)

func init() {
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(purchaseCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(achievementsCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(ownedCmd)
	rootCmd.AddCommand(kindsCmd)

	activityCmd.Flags().Int64P("count", "n", 1, "How many times the activity happened")
	historyCmd.Flags().IntP("limit", "l", 0, "Maximum transactions to show (default from config)")
	logCmd.Flags().IntP("limit", "l", 0, "Maximum entries to show (default from config)")
}

// ─── activity ───────────────────────────────────────────────────────────────

var activityCmd = &cobra.Command{
	Use:   "activity USER KIND",
	Short: "Record a countable community activity",
	Long: `Record that USER performed KIND (` + kindList() + `).
Every achievement bound to KIND advances; completions pay their rewards
immediately. Run "progression kinds" to see which achievements each kind
advances.`,
	Args: cobra.ExactArgs(2),
	RunE: runActivity,
}

func runActivity(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt64("count")
	return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
		snaps, err := eng.RecordActivity(ctx, args[0], domain.ActivityKind(args[1]), count)
		if err != nil && len(snaps) == 0 {
			return err
		}
		out := cmd.OutOrStdout()
		if perr := emit(out, snaps, func(w io.Writer) {
			if len(snaps) == 0 {
				fmt.Fprintf(w, "No achievements track %q.\n", args[1])
				return
			}
			for _, s := range snaps {
				p := s.Progress
				mark := " "
				if s.JustCompleted {
					mark = "🏆"
				}
				fmt.Fprintf(w, "%s %-20s %d/%d  %s\n", mark, p.Type, p.CurrentValue, p.Target, p.State())
			}
		}); perr != nil {
			return perr
		}
		return err
	})
}

// ─── purchase / select ──────────────────────────────────────────────────────

var purchaseCmd = &cobra.Command{
	Use:   "purchase USER ITEM",
	Short: "Buy a catalog item with points",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			rec, err := eng.PurchaseItem(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rec, func(w io.Writer) {
				fmt.Fprintf(w, "✅ %s unlocked %s for %d points.\n", rec.UserID, rec.ItemID, *rec.PricePaid)
			})
		})
	},
}

var selectCmd = &cobra.Command{
	Use:   "select USER ITEM",
	Short: "Equip an owned item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			item, err := eng.SelectActiveItem(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), item, func(w io.Writer) {
				fmt.Fprintf(w, "✅ %s is now wearing %s.\n", args[0], item.Name)
			})
		})
	},
}

// ─── reads ──────────────────────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance USER",
	Short: "Show a user's point balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			bal, err := eng.GetBalance(ctx, args[0])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), map[string]interface{}{"user_id": args[0], "balance": bal}, func(w io.Writer) {
				fmt.Fprintf(w, "%d\n", bal)
			})
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history USER",
	Short: "Show a user's ledger, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			txs, err := eng.GetLedgerHistory(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), txs, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "WHEN\tTYPE\tAMOUNT\tDESCRIPTION")
				for _, t := range txs {
					fmt.Fprintf(tw, "%s\t%s\t%+d\t%s\n", t.CreatedAt.Format("2006-01-02 15:04:05"), t.Type, t.Signed(), t.Description)
				}
				tw.Flush()
			})
		})
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog USER",
	Short: "List the catalog with a user's unlock status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			items, err := eng.GetCatalogWithStatus(ctx, args[0])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), items, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ITEM\tRARITY\tPRICE\tSTATUS")
				for _, st := range items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Item.ID, st.Item.Rarity, priceLabel(st.Item), statusLabel(st))
				}
				tw.Flush()
			})
		})
	},
}

var achievementsCmd = &cobra.Command{
	Use:   "achievements USER",
	Short: "List every achievement with a user's progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			list, err := eng.GetAchievements(ctx, args[0])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), list, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ACHIEVEMENT\tPROGRESS\tSTATE\tREWARD")
				for _, st := range list {
					p := st.Progress
					fmt.Fprintf(tw, "%s\t%d/%d (%.0f%%)\t%s\t%d pts\n", st.Definition.Title, p.CurrentValue, p.Target, p.Percent(), p.State(), st.Definition.Reward.Points)
				}
				tw.Flush()
			})
		})
	},
}

var logCmd = &cobra.Command{
	Use:   "log USER",
	Short: "Show a user's activity history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			entries, err := eng.GetActivityLog(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), entries, func(w io.Writer) {
				for _, e := range entries {
					fmt.Fprintf(w, "%s  %-22s %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.Title)
				}
			})
		})
	},
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func priceLabel(item domain.CatalogItem) string {
	switch {
	case item.IsDefault:
		return "free"
	case item.Price == nil:
		return "reward only"
	default:
		return strconv.FormatInt(*item.Price, 10)
	}
}

func statusLabel(st domain.ItemStatus) string {
	s := "locked"
	if st.Unlocked {
		s = "owned"
		if st.UnlockType != nil {
			s += " (" + string(*st.UnlockType) + ")"
		}
	}
	if st.Active {
		s += ", active"
	}
	return s
}

// ─── owned / kinds ──────────────────────────────────────────────────────────

var ownedCmd = &cobra.Command{
	Use:   "owned USER ITEM",
	Short: "Show how and when a user unlocked an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engagement.Engine) error {
			rec, err := eng.GetUnlock(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rec, func(w io.Writer) {
				how := string(rec.Type)
				if rec.PricePaid != nil {
					how += " for " + strconv.FormatInt(*rec.PricePaid, 10) + " points"
				}
				if rec.Source != "" {
					how += " (" + rec.Source + ")"
				}
				fmt.Fprintf(w, "%s owns %s: %s on %s\n", rec.UserID, rec.ItemID, how, rec.UnlockedAt.Format("2006-01-02 15:04"))
			})
		})
	},
}

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List activity kinds and the achievements they advance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := catalog.Builtin()
		bound := make(map[domain.ActivityKind][]domain.AchievementType)
		for _, k := range cat.Kinds() {
			bound[k] = cat.AchievementsFor(k)
		}
		return emit(cmd.OutOrStdout(), bound, func(w io.Writer) {
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tACHIEVEMENTS")
			for _, k := range cat.Kinds() {
				types := make([]string, len(bound[k]))
				for i, t := range bound[k] {
					types[i] = string(t)
				}
				fmt.Fprintf(tw, "%s\t%s\n", k, strings.Join(types, ", "))
			}
			tw.Flush()
		})
	},
}

func kindList() string {
	kinds := catalog.Builtin().Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
