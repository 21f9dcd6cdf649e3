package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/pmdeck/pkg/client"
)

func newClient(flags *GlobalFlags) *client.Client {
	return client.New(client.Config{BaseURL: flags.APIUrl, Timeout: flags.APITimeout})
}

func printJSON(cmd *cobra.Command, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
}

// report prints an operation result and turns a failed one into an error so
// the process exits non-zero.
func report(cmd *cobra.Command, res client.OperationResult, err error) error {
	if err != nil {
		return err
	}
	printJSON(cmd, res)
	if !res.Success {
		msg := res.Message
		if res.Error != "" {
			msg += ": " + res.Error
		}
		return errors.New(msg)
	}
	return nil
}
