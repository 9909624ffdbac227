package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List the procedures the session exposes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listURIs(cmd, (*waapi.Client).GetFunctions)
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the topics the session publishes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listURIs(cmd, (*waapi.Client).GetTopics)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the authoring application and project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		if err := a.connect(ctx); err != nil {
			return err
		}
		info, err := a.client.GetInfo(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s (pid %d)\n", info.DisplayName, info.Version.DisplayName, info.ProcessID)
		if p := a.client.State().Project; p != nil {
			fmt.Fprintf(out, "project %s at %s\n", p.Name, p.Path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(functionsCmd, topicsCmd, infoCmd)
}

func listURIs(cmd *cobra.Command, list func(*waapi.Client, context.Context) ([]string, error)) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if err := a.connect(ctx); err != nil {
		return err
	}
	uris, err := list(a.client, ctx)
	if err != nil {
		return err
	}
	sort.Strings(uris)
	for _, uri := range uris {
		fmt.Fprintln(cmd.OutOrStdout(), uri)
	}
	return nil
}
