package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cmd2 "github.com/kastheco/specwave/cmd"
	"github.com/kastheco/specwave/config"
	"github.com/kastheco/specwave/internal/initcmd"
	sentrypkg "github.com/kastheco/specwave/internal/sentry"
	"github.com/kastheco/specwave/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	version     = "0.1.0"
	verboseFlag bool
	rootCmd     = &cobra.Command{
		Use:   "specwave",
		Short: "specwave - Generate RSpec context structure from analysed Ruby code, one dependency wave at a time.",
		Long: `specwave turns the branching characteristics of changed Ruby methods into
ordered RSpec context trees and patches them into spec files without touching
hand-written code.

  discover   find changed units and schedule them into dependency waves
  structure  preview the context tree of a unit
  apply      generate blocks and patch them into spec files
  run        run a pipeline stage over every eligible unit
  check      audit records, sources and spec files`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Initialize(verboseFlag)
			cfg := config.LoadConfig()
			// Non-fatal: telemetry failure should not prevent startup.
			if err := sentrypkg.Init(version, cfg.SentryDSN, cfg.IsTelemetryEnabled()); err != nil {
				log.WarningLog.Printf("sentry init failed: %v", err)
			}
			sentrypkg.SetContext(cfg.ProjectName(), cmd.CommandPath())
		},
	}

	debugCmd = &cobra.Command{
		Use:   "debug",
		Short: "Print debug information like config paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()

			configDir, err := config.GetConfigDir()
			if err != nil {
				return fmt.Errorf("failed to get config directory: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Global config: %s\n", filepath.Join(configDir, config.ConfigFileName))
			fmt.Fprintf(out, "Project root: %s\n", cfg.Root)
			for _, src := range cfg.Sources {
				fmt.Fprintf(out, "Applied: %s\n", src)
			}
			fmt.Fprintf(out, "Log file: %s\n\n", log.FileName())
			return cfg.WriteTOML(out)
		},
	}

	initForceFlag bool
	initCleanFlag bool
	initYesFlag   bool
	initCmd       = &cobra.Command{
		Use:   "init",
		Short: "Write a .specwave.toml for the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			return initcmd.Run(cwd, initcmd.Options{
				Force:       initForceFlag,
				Clean:       initCleanFlag,
				Interactive: !initYesFlag && term.IsTerminal(int(os.Stdin.Fd())),
			}, cmd.OutOrStdout())
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of specwave",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "specwave version %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "https://github.com/kastheco/specwave/releases/tag/v%s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "also write log output to stderr")

	initCmd.Flags().BoolVarP(&initForceFlag, "force", "f", false, "overwrite an existing project file")
	initCmd.Flags().BoolVar(&initCleanFlag, "clean", false, "ignore existing config and start from factory defaults")
	initCmd.Flags().BoolVarP(&initYesFlag, "yes", "y", false, "write the detected settings without asking")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newStagesCmd())
	rootCmd.AddCommand(cmd2.NewDiscoverCmd())
	rootCmd.AddCommand(cmd2.NewWavesCmd())
	rootCmd.AddCommand(cmd2.NewStructureCmd())
	rootCmd.AddCommand(cmd2.NewApplyCmd())
	rootCmd.AddCommand(cmd2.NewPatchCmd())
	rootCmd.AddCommand(cmd2.NewMetadataCmd())
	rootCmd.AddCommand(cmd2.NewRunCmd())
	rootCmd.AddCommand(cmd2.NewAuditCmd())
}

// exitCode maps a command error to the process exit status, printing it
// unless it was already reported.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if !errors.Is(err, errUnhealthy) && !errors.Is(err, cmd2.ErrInvalid) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return 1
}

func main() {
	err := run()
	log.Close()
	sentrypkg.Flush()
	os.Exit(exitCode(err))
}

func run() error {
	defer sentrypkg.RecoverPanic()
	return rootCmd.Execute()
}
