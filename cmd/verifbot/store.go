package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var storeStatus string

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and maintain the verification store",
}

var storeShowCmd = &cobra.Command{
	Use:   "show [member-id]",
	Short: "Print verification records as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		repo := a.repository()
		var out any
		if len(args) == 1 {
			record, ok := repo.Get(args[0])
			if !ok {
				return fmt.Errorf("no verification for member %s", args[0])
			}
			out = record
		} else {
			records := repo.List()
			if storeStatus != "" {
				filtered := records[:0]
				for _, r := range records {
					if r.EffectiveStatus() == storeStatus {
						filtered = append(filtered, r)
					}
				}
				records = filtered
			}
			out = records
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var storeBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the store next to itself and to S3 when configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		repo := a.repository()
		backuper, err := a.backuper(cmd.Context(), repo)
		if err != nil {
			return err
		}
		result, err := backuper.Backup(cmd.Context())
		if result.LocalPath != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Local copy: %s\n", result.LocalPath)
		}
		if result.RemoteKey != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded: s3://%s/%s\n", a.cfg.Storage.BackupBucket, result.RemoteKey)
		}
		return err
	},
}

var storeResetForce bool

var storeResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Back up, then drop every verification record",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !storeResetForce {
			return fmt.Errorf("refusing to reset without --force")
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		repo := a.repository()
		backuper, err := a.backuper(cmd.Context(), repo)
		if err != nil {
			return err
		}
		result, err := backuper.Backup(cmd.Context())
		if result.LocalPath == "" {
			return fmt.Errorf("backup failed, store left untouched: %w", err)
		}
		if err := repo.Reset(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Store cleared, backup at %s\n", result.LocalPath)
		return nil
	},
}

func init() {
	storeShowCmd.Flags().StringVar(&storeStatus, "status", "", "only show records with this status")
	storeResetCmd.Flags().BoolVar(&storeResetForce, "force", false, "confirm the reset")

	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeShowCmd)
	storeCmd.AddCommand(storeBackupCmd)
	storeCmd.AddCommand(storeResetCmd)
}
