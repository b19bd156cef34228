package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"goaltrack/internal/app"
	"goaltrack/internal/gt"
)

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with the remote backup",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Upload local data now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "SyncNow")
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.Controller().SyncNow(cmd.Context()); err != nil {
			if errors.Is(err, gt.ErrRemoteAhead) {
				return fmt.Errorf("%w: run `goaltrack sync restore` or `goaltrack sync keep-local`", err)
			}
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Println("Saved to remote backup.")
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "SyncStatus")
		if err != nil {
			return err
		}
		defer closeApp(a)

		st := a.Controller().Status(cmd.Context())
		fmt.Printf("State:         %s\n", st.State)
		fmt.Printf("Signed in:     %t\n", st.Authenticated)
		fmt.Printf("Last sync:     %s\n", ago(st.LastSync))
		fmt.Printf("Unsynced work: %t\n", st.Dirty)
		if !st.RemoteModified.IsZero() {
			fmt.Printf("Remote saved:  %s\n", ago(st.RemoteModified))
		}
		if len(st.Uploading) > 0 {
			fmt.Printf("Uploading:     %s\n", strings.Join(st.Uploading, ", "))
		}
		if st.LastError != nil {
			fmt.Printf("Last error:    %v\n", st.LastError)
		}
		if st.State == gt.StateRemoteAhead {
			fmt.Println("\nThe remote backup is newer than this device. Run `goaltrack sync restore`")
			fmt.Println("to replace local data, or `goaltrack sync keep-local` to overwrite the remote.")
		}
		return nil
	},
}

var syncRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace local data with the remote backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Restore")
		if err != nil {
			return err
		}
		defer closeApp(a)

		var pass string
		if a.NeedsPassphrase() {
			pass, err = readPassphrase("Backup passphrase: ")
			if err != nil {
				return err
			}
		}
		if err := a.Restore(cmd.Context(), pass); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Println("Local data replaced with the remote backup.")
		if p := a.Store().Path(); p != ":memory:" {
			fmt.Printf("Previous data kept in %s\n", p+app.PreRestoreSuffix)
		}
		return nil
	},
}

var syncKeepLocalCmd = &cobra.Command{
	Use:   "keep-local",
	Short: "Overwrite the remote backup with local data",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "KeepLocal")
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.Controller().KeepLocal(cmd.Context()); err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		fmt.Println("Remote backup replaced with local data.")
		return nil
	},
}

var syncHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent sync attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "SyncHistory")
		if err != nil {
			return err
		}
		defer closeApp(a)

		runs, err := a.Store().SyncRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No sync attempts recorded.")
			return nil
		}
		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-10s  %s  %-8s  %-8s  %s\n",
				r.ID,
				r.Trigger,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				duration,
				r.Detail,
			)
		}
		return nil
	},
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

func init() {
	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncRestoreCmd)
	syncCmd.AddCommand(syncKeepLocalCmd)
	syncCmd.AddCommand(syncHistoryCmd)
	syncHistoryCmd.Flags().IntP("limit", "n", 50, "Maximum number of attempts to show")
}
