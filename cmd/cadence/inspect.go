package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cuemby/cadence/pkg/types"
	"github.com/spf13/cobra"
)

// Post commands
var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Inspect scheduled posts",
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		posts, err := store.ListPosts(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list posts: %w", err)
		}
		sort.Slice(posts, func(i, j int) bool {
			return posts[i].ScheduledAt.Before(posts[j].ScheduledAt)
		})

		var filtered []*types.ScheduledPost
		for _, p := range posts {
			if status == "" || string(p.Status) == status {
				filtered = append(filtered, p)
			}
		}
		printPosts(cmd.OutOrStdout(), filtered)
		return nil
	},
}

func printPosts(out io.Writer, posts []*types.ScheduledPost) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLATFORM\tKIND\tSCHEDULED\tSTATUS\tRETRIES\tLAST ERROR")
	for _, p := range posts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			p.ID, p.Platform, p.MediaKind, p.ScheduledAt.Format(time.RFC3339),
			p.Status, p.RetryCount, truncateCell(p.LastError, 48))
	}
	w.Flush()
}

// Rule commands
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect automation rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List automation rules with their counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		rules, err := store.ListRules(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}
		printRules(cmd.OutOrStdout(), rules)
		return nil
	},
}

func printRules(out io.Writer, rules []*types.AutomationRule) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tACTIVE\tTODAY\tLIMIT\tSUCCESS\tERRORS\tLAST RUN")
	for _, r := range rules {
		limit := "-"
		if r.DailyLimit > 0 {
			limit = fmt.Sprintf("%d", r.DailyLimit)
		}
		today := 0
		if r.DailyCountDate == types.DayKey(time.Now()) {
			today = r.DailyCount
		}
		lastRun := "never"
		if !r.LastExecutionAt.IsZero() {
			lastRun = r.LastExecutionAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\t%d\t%d\t%s\n",
			r.ID, r.Kind, r.Active, today, limit, r.SuccessCount, r.ErrorCount, lastRun)
	}
	w.Flush()
}

// Notification commands
var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Inspect stored notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		notifications, err := store.ListNotifications(cmd.Context(), userID, limit)
		if err != nil {
			return fmt.Errorf("failed to list notifications: %w", err)
		}
		printNotifications(cmd.OutOrStdout(), notifications)
		return nil
	},
}

func printNotifications(out io.Writer, notifications []*types.Notification) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tUSER\tKIND\tPOST\tMESSAGE")
	for _, n := range notifications {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			n.CreatedAt.Format(time.RFC3339), n.UserID, n.Kind, n.PostID, truncateCell(n.Message, 60))
	}
	w.Flush()
}

func truncateCell(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

func init() {
	postsCmd.AddCommand(postsListCmd)
	postsListCmd.Flags().String("status", "", "Only show posts with this status (scheduled, posted, failed)")

	rulesCmd.AddCommand(rulesListCmd)

	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsListCmd.Flags().String("user", "", "Only show this user's notifications")
	notificationsListCmd.Flags().Int("limit", 50, "Maximum notifications to show (0 for all)")

	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(notificationsCmd)
}
