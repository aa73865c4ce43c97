package app

import (
	"github.com/spf13/cobra"
)

// CreateServeCmd create serve command
func CreateServeCmd(handler func(cmd *cobra.Command, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the dispatch engine and the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  handler,
	}
}

// CreateQueryCmd create query command running statements given as arguments
func CreateQueryCmd(handler func(cmd *cobra.Command, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "query <statement>...",
		Short: "run statements through the dispatch engine and print results",
		Args:  cobra.MinimumNArgs(1),
		RunE:  handler,
	}
}
