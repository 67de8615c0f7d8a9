package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Terminal client for a retrieval-augmented chat service",
	Long: `ragchat is a terminal client for a local retrieval-augmented chat
service. Run it without arguments to open the interactive chat TUI, or use
the subcommands for one-shot operations against the service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ragchat version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ragchat version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mockCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
