// Package main is the Jukebox RPC client: it mirrors a live "now playing"
// feed onto Discord Rich Presence from a terminal UI, the system tray, or a
// headless process.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
	"tools.zach/dev/jukeboxrpc/internal/logger"
	"tools.zach/dev/jukeboxrpc/internal/paths"
)

// DataPaths names the files under the data directory.
type DataPaths = paths.DataDir

// defaultDataDir is ~/.jukeboxrpc, or relative to the working directory when
// there is no home.
func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, paths.DataDirRel)
}

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time with -X main.version=... When unset,
// resolveVersion falls back to the VCS stamp the toolchain embeds.
var version = "dev"

// resolveVersion returns the ldflags version, or "dev+<hash>[.dirty]" from
// the embedded build info.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

// rootFlags are shared by every subcommand.
type rootFlags struct {
	dataDir string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   paths.BinaryName,
		Short: "Mirror your jukebox's now playing onto Discord",
		Long: `Jukebox RPC connects to your jukebox's live-update channel with a
session token and shows what is playing as Discord Rich Presence.

Run without a subcommand for the terminal UI.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), flags.dataDir)
		},
	}
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", defaultDataDir(), "directory for config, token, and logs")

	root.AddCommand(
		newAutostartCmd(),
		newLogsCmd(flags),
		newRunCmd(flags),
		newTrayCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Show version information",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", paths.AppName, resolveVersion())
			fmt.Fprintf(out, "  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "  Go: %s\n", runtime.Version())
		},
	}
}

func newLogsCmd(flags *rootFlags) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the client log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lines <= 0 {
				return fmt.Errorf("--lines must be positive, got %d", lines)
			}
			dp := DataPaths{Root: flags.dataDir}
			tail, err := logger.ReadTail(dp.Log(), lines)
			if err != nil {
				return fmt.Errorf("read log: %w", err)
			}
			if tail != "" {
				fmt.Fprintln(cmd.OutOrStdout(), tail)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	return cmd
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", paths.BinaryName, err)
		if errors.Is(err, errAlreadyRunning) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
