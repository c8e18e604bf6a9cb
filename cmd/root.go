// Package cmd is the browser kernel's CLI: wiring for the admission-control
// scheduler, the plan executor, and the agent loop over a real CDP driver.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/goclaw/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "goclaw-kernel",
	Short: "goclaw-kernel — browser-automation kernel",
	Long:  "goclaw-kernel: admission-controlled browser automation over CDP, driven by an LLM planner.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKernel()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "policy config file (default: policy.json5 or $GOCLAW_POLICY)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(runCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("goclaw-kernel", Version)
		},
	}
}

func resolvePolicyPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("GOCLAW_POLICY"); v != "" {
		return v
	}
	return "policy.json5"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
