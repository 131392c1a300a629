package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stv-go/internal/app"
	"stv-go/internal/config"
	"stv-go/internal/stv"
	"stv-go/internal/watch"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if hint := stv.RecoveryHint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

// newApp reads the config and creates an STVApp. The caller must defer app.Close().
func newApp(ctx context.Context) (*app.STVApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewSTVApp(ctx, cfg, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp runs fn with a fresh app and reports a Close failure when fn succeeded.
func withApp(cmd *cobra.Command, fn func(a *app.STVApp) error) (err error) {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

var rootCmd = &cobra.Command{
	Use:          "stv",
	Short:        "Resolve sync conflicts and manage kept versions",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", defaults["config_path"])
		fmt.Fprintf(out, "Host ID: %s\n", hostID)
		fmt.Fprintf(out, "Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration from %s:\n\n", defaults["config_path"])
		fmt.Fprintf(out, "Host ID:   %s\n", cfg.HostID)
		fmt.Fprintf(out, "Base Dir:  %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Log Dir:   %s\n", cfg.LogDir)
		fmt.Fprintf(out, "Retention: %d day(s)\n", cfg.Retention.DefaultDays)
		for _, f := range cfg.Folders {
			fmt.Fprintf(out, "Folder:    %-12s %s\n", f.Label, f.Path)
		}
		for _, v := range cfg.Vaults {
			fmt.Fprintf(out, "Vault:     %-12s %s\n", v.Name, v.Type)
		}
		return nil
	},
}

// conflicts command
var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Find and resolve conflict copies",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list FOLDER",
	Short: "List conflict copies in a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(a *app.STVApp) error {
			records, err := a.ScanConflicts(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), records)
			}
			printConflicts(cmd.OutOrStdout(), records)
			return nil
		})
	},
}

var conflictsDiscardCmd = &cobra.Command{
	Use:   "discard FOLDER CONFLICT",
	Short: "Delete a conflict copy and keep the original",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.STVApp) error {
			out, err := a.DiscardConflict(args[0], args[1])
			if err != nil {
				return err
			}
			if out.Files == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Conflict already gone.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Discarded %s (%s)\n", args[1], stv.FormatBytes(out.Bytes))
			return nil
		})
	},
}

var conflictsPromoteCmd = &cobra.Command{
	Use:   "promote FOLDER CONFLICT",
	Short: "Replace the original with a conflict copy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		original, _ := cmd.Flags().GetString("original")
		return withApp(cmd, func(a *app.STVApp) error {
			out, err := a.PromoteConflict(args[0], args[1], original)
			if err != nil {
				return err
			}
			switch {
			case out.Removed > 0:
				fmt.Fprintf(cmd.OutOrStdout(), "Conflict no longer exists; removed original (%s)\n", stv.FormatBytes(out.Bytes))
				return nil
			case out.Files == 0:
				fmt.Fprintln(cmd.OutOrStdout(), "Conflict no longer exists; nothing promoted.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Promoted %s (%s)\n", args[1], stv.FormatBytes(out.Bytes))
			return nil
		})
	},
}

var conflictsWatchCmd = &cobra.Command{
	Use:   "watch FOLDER",
	Short: "Report conflicts as they appear and disappear",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withApp(cmd, func(a *app.STVApp) error {
			w := cmd.OutOrStdout()
			return a.Watch(ctx, args[0], func(c watch.Change) {
				now := time.Now().Format("15:04:05")
				for _, r := range c.Appeared {
					fmt.Fprintf(w, "%s  + %s\n", now, r.RelativePath)
				}
				for _, r := range c.Disappeared {
					fmt.Fprintf(w, "%s  - %s\n", now, r.RelativePath)
				}
			})
		})
	},
}

// versions command
var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Browse, restore and prune kept versions",
}

var versionsListCmd = &cobra.Command{
	Use:   "list FOLDER [PREFIX]",
	Short: "List one level of the versions directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		prefix := ""
		if len(args) > 1 {
			prefix = args[1]
		}
		return withApp(cmd, func(a *app.STVApp) error {
			entries, err := a.ListVersions(args[0], prefix)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			printVersions(cmd.OutOrStdout(), entries)
			return nil
		})
	},
}

var versionsRestoreCmd = &cobra.Command{
	Use:   "restore FOLDER VERSION",
	Short: "Copy a version back into the folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		return withApp(cmd, func(a *app.STVApp) error {
			if to == "" {
				to = app.InferRestoreTarget(args[1])
			}
			out, err := a.RestoreVersion(args[0], args[1], to, overwrite)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s to %s (%s)\n", args[1], to, stv.FormatBytes(out.Bytes))
			return nil
		})
	},
}

var versionsUsageCmd = &cobra.Command{
	Use:   "usage FOLDER",
	Short: "Show storage used by kept versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(a *app.STVApp) error {
			report, err := a.StorageUsage(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			if !report.Exists {
				fmt.Fprintln(cmd.OutOrStdout(), "No versions directory.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s in %d file(s)\n", report.TotalFormatted, report.FileCount)
			return nil
		})
	},
}

var versionsPruneCmd = &cobra.Command{
	Use:   "prune FOLDER",
	Short: "Delete kept versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		olderThan, _ := cmd.Flags().GetInt("older-than")
		archiveFirst, _ := cmd.Flags().GetBool("archive")
		yes, _ := cmd.Flags().GetBool("yes")

		if all && cmd.Flags().Changed("older-than") {
			return fmt.Errorf("--all and --older-than are mutually exclusive")
		}

		return withApp(cmd, func(a *app.STVApp) error {
			if !all && !cmd.Flags().Changed("older-than") {
				olderThan = a.DefaultRetentionDays()
			}

			if !yes {
				prompt := fmt.Sprintf("Delete versions older than %d day(s) in %s?", olderThan, args[0])
				if all {
					prompt = fmt.Sprintf("Delete ALL versions in %s?", args[0])
				}
				ok, err := confirm(prompt)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			var (
				res *stv.RetentionResult
				err error
			)
			if all {
				res, err = a.PruneAll(cmd.Context(), args[0], archiveFirst)
			} else {
				res, err = a.PruneOlderThan(cmd.Context(), args[0], olderThan, archiveFirst)
			}
			if err != nil {
				return err
			}
			printRetention(cmd.OutOrStdout(), res)
			return nil
		})
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Copy kept versions to the vault",
}

var archivePushCmd = &cobra.Command{
	Use:   "push FOLDER",
	Short: "Upload a folder's versions to the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.STVApp) error {
			res, err := a.ArchivePush(cmd.Context(), args[0])
			if res != nil {
				printArchive(cmd.OutOrStdout(), res)
			}
			return err
		})
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "list [PREFIX]",
	Short: "List archived objects",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		return withApp(cmd, func(a *app.STVApp) error {
			objects, err := a.ArchiveList(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), objects)
			}
			if len(objects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived objects.")
				return nil
			}
			for _, o := range objects {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %10s  %s\n",
					o.LastModified.Local().Format("2006-01-02 15:04:05"), stv.FormatBytes(o.Size), o.Key)
			}
			return nil
		})
	},
}

var archiveGetCmd = &cobra.Command{
	Use:   "get KEY DEST",
	Short: "Download an archived object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		return withApp(cmd, func(a *app.STVApp) error {
			out, err := a.ArchiveGet(cmd.Context(), args[0], args[1], overwrite)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fetched %s to %s (%s)\n", args[0], args[1], stv.FormatBytes(out.Bytes))
			return nil
		})
	},
}

var archiveRmCmd = &cobra.Command{
	Use:   "rm KEY",
	Short: "Delete an archived object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.STVApp) error {
			if _, err := a.ArchiveRemove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		})
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history [FOLDER]",
	Short: "View journaled operations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		folder := ""
		if len(args) > 0 {
			folder = args[0]
		}
		return withApp(cmd, func(a *app.STVApp) error {
			ops, err := a.History(folder, limit)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No operations recorded.")
				return nil
			}
			for _, op := range ops {
				duration := ""
				if op.FinishedAt != nil {
					duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d  %-12s  %s  %-8s  %5d  %10s  %-8s  %s\n",
					op.ID,
					op.Operation,
					op.StartedAt.Local().Format("2006-01-02 15:04:05"),
					op.Status,
					op.FilesAffected,
					stv.FormatBytes(op.BytesAffected),
					duration,
					op.Parameters,
				)
			}
			return nil
		})
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// conflicts subcommands
	conflictsCmd.AddCommand(conflictsListCmd)
	conflictsListCmd.Flags().Bool("json", false, "Print as JSON")
	conflictsCmd.AddCommand(conflictsDiscardCmd)
	conflictsCmd.AddCommand(conflictsPromoteCmd)
	conflictsPromoteCmd.Flags().String("original", "", "Original path relative to the folder (default: decoded from the conflict name)")
	conflictsCmd.AddCommand(conflictsWatchCmd)

	// versions subcommands
	versionsCmd.AddCommand(versionsListCmd)
	versionsListCmd.Flags().Bool("json", false, "Print as JSON")
	versionsCmd.AddCommand(versionsRestoreCmd)
	versionsRestoreCmd.Flags().String("to", "", "Destination relative to the folder (default: decoded from the version name)")
	versionsRestoreCmd.Flags().Bool("overwrite", false, "Replace an existing destination file")
	versionsCmd.AddCommand(versionsUsageCmd)
	versionsUsageCmd.Flags().Bool("json", false, "Print as JSON")
	versionsCmd.AddCommand(versionsPruneCmd)
	versionsPruneCmd.Flags().Bool("all", false, "Delete the whole versions directory")
	versionsPruneCmd.Flags().Int("older-than", 0, "Delete versions modified more than this many days ago (default: retention.default_days)")
	versionsPruneCmd.Flags().Bool("archive", false, "Archive versions to the vault first; abort if any upload fails")
	versionsPruneCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	// archive subcommands
	archiveCmd.AddCommand(archivePushCmd)
	archiveCmd.AddCommand(archiveListCmd)
	archiveListCmd.Flags().Bool("json", false, "Print as JSON")
	archiveCmd.AddCommand(archiveGetCmd)
	archiveGetCmd.Flags().Bool("overwrite", false, "Replace an existing destination file")
	archiveCmd.AddCommand(archiveRmCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
