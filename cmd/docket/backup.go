package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lawdesk/docket/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup <file>",
	Short: "Export all tasks and cases to a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		eng, st, err := startEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		defer eng.Stop()

		snap := backup.Create(eng.Tasks(), eng.Cases(), time.Now())

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("create %s: %w", args[0], err)
		}
		defer f.Close()
		if err := backup.Write(f, snap); err != nil {
			return err
		}
		fmt.Printf("Wrote %d task(s) and %d case(s) to %s\n", len(snap.Tasks), len(snap.Cases), args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Load a snapshot file into the store",
	Long: `Restore loads a snapshot produced by backup.

Replace mode (the default) clears both collections first. Merge mode upserts
snapshot records by id and leaves everything else untouched. A malformed
snapshot aborts before any write.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modeStr, _ := cmd.Flags().GetString("mode")
		mode, err := backup.ParseMode(modeStr)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()
		snap, err := backup.Decode(f)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := backup.Restore(ctx, st, snap, mode, log); err != nil {
			return err
		}
		fmt.Printf("Restored %d task(s) and %d case(s) (%s mode)\n", len(snap.Tasks), len(snap.Cases), mode)
		return nil
	},
}

func init() {
	restoreCmd.Flags().String("mode", "replace", "restore mode: replace or merge")
	rootCmd.AddCommand(backupCmd, restoreCmd)
}
