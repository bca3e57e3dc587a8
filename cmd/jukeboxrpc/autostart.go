package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"tools.zach/dev/jukeboxrpc/internal/autostart"
)

// launcher is the part of [autostart.Manager] the subcommands use.
type launcher interface {
	Enabled() (bool, error)
	SetEnabled(on bool) error
}

// newLauncher is swapped in tests.
var newLauncher = func() (launcher, error) {
	return autostart.ForCurrentExecutable(autostartArgs...)
}

func newAutostartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Manage launching the tray at login",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the tray starts at login",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				l, err := newLauncher()
				if err != nil {
					return err
				}
				on, err := l.Enabled()
				if err != nil {
					return fmt.Errorf("read autostart: %w", err)
				}
				state := "disabled"
				if on {
					state = "enabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "start at login: %s\n", state)
				return nil
			},
		},
		setAutostartCmd("enable", "Start the tray at login", true),
		setAutostartCmd("disable", "Stop starting the tray at login", false),
	)
	return cmd
}

func setAutostartCmd(use, short string, on bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := newLauncher()
			if err != nil {
				return err
			}
			if err := l.SetEnabled(on); err != nil {
				return fmt.Errorf("%s autostart: %w", use, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "start at login %sd\n", use)
			return nil
		},
	}
}
