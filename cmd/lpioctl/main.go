package main

import (
	"fmt"
	"os"

	"github.com/danmuck/lpio/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "lpioctl",
	Short:         "Long-poll reliable messaging client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.ConfigureRuntime()
	},
}

func init() {
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newConfigCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lpioctl: %v\n", err)
		os.Exit(1)
	}
}
