package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "triagebot",
		Short: "Triagebot - automated GitHub issue and PR triage",
		Long: `Triagebot polls GitHub repositories for issues and pull requests that
ask for attention, classifies what each one needs, and runs the matching
workflow: drafting responses, applying edits through an external code
editor, and opening pull requests.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
