package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/waapi-kit/waapi-kit/internal/console"
	"github.com/waapi-kit/waapi-kit/internal/undo"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the interactive console",
	Long: `Shows the session status, the undo history of operations issued from the
console, the current selection and a live log of change notifications.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		noConnect, _ := cmd.Flags().GetBool("no-connect")
		tracker := undo.New(
			undo.WithGraceWindow(a.cfg.Undo.GraceWindow),
			undo.WithWatchedProperties(a.cfg.Undo.WatchedProperties...),
			undo.WithLogger(a.log),
			undo.WithMetrics(a.metrics),
		)
		m := console.New(a.client, tracker, console.Options{
			Host:        a.cfg.Connection.Host,
			Port:        a.cfg.Connection.Port,
			AutoConnect: !noConnect,
			Topics:      a.cfg.Undo.ChangeTopics,
			Logger:      a.log,
		})

		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().Bool("no-connect", false, "Start disconnected")
}
