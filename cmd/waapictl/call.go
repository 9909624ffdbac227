package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <uri> [kwargs-json]",
	Short: "Call a procedure and print its result",
	Example: `  waapictl call ak.wwise.core.getInfo
  waapictl call ak.wwise.core.object.get '{"waql":"$ from type Sound"}' --options '{"return":["id","name"]}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var kwargs json.RawMessage
		if len(args) == 2 {
			kwargs = json.RawMessage(args[1])
			if !json.Valid(kwargs) {
				return fmt.Errorf("kwargs is not valid JSON")
			}
		}
		var options json.RawMessage
		if raw, _ := cmd.Flags().GetString("options"); raw != "" {
			options = json.RawMessage(raw)
			if !json.Valid(options) {
				return fmt.Errorf("--options is not valid JSON")
			}
		}

		a, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		if err := a.connect(ctx); err != nil {
			return err
		}
		res, err := a.client.RawCall(ctx, args[0], kwargs, options)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().String("options", "", "Call options as a JSON object")
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
