package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/ragchat/internal/config"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service health and performance stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		health, err := client.Health(ctx)
		if err != nil {
			printStatus("Server", "unreachable at %s", cfg.Server.BaseURL)
			return fmt.Errorf("checking health: %w", err)
		}

		printStatus("Server", "%s at %s", health.Status, cfg.Server.BaseURL)
		if health.ModelLoaded {
			printStatus("Model", "loaded")
		} else {
			printStatus("Model", "not loaded")
		}
		printStatus("Documents", "%d", health.DocumentCount)

		stats, err := client.Stats(ctx)
		if err != nil {
			printWarning("stats unavailable: %v", err)
			return nil
		}
		printStatus("Queries", "%d", stats.TotalQueries)
		if stats.AvgGPTTime != "" {
			printStatus("Avg response", "%s", stats.AvgGPTTime)
		}
		return nil
	},
}

// --- memory ---

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Show the service's short-term conversation memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		mem, err := client.Memory(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetching memory: %w", err)
		}

		printStatus("Memory", "%d / %d messages", mem.Count, mem.MaxCount)
		for _, m := range mem.Messages {
			content := m.Content
			if len(content) > 80 {
				content = content[:80] + "..."
			}
			fmt.Printf("  %s %s\n", colorize(colorCyan, m.Role+":"), content)
		}
		return nil
	},
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the service's short-term conversation memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		if err := client.ClearMemory(cmd.Context()); err != nil {
			return fmt.Errorf("clearing memory: %w", err)
		}
		printSuccess("Memory cleared")
		return nil
	},
}

func init() {
	memoryCmd.AddCommand(memoryClearCmd)
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the service's current conversation memory as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, _, err := newClient()
		if err != nil {
			return err
		}

		mem, err := client.Memory(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetching memory: %w", err)
		}

		// Same document shape as the TUI's session export; a headless
		// one-shot never has admin mode on.
		doc := map[string]any{
			"timestamp":     time.Now().Format(time.RFC3339),
			"messages":      mem.Messages,
			"totalMessages": mem.Count,
			"adminMode":     false,
		}

		writer := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		enc := json.NewEncoder(writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return err
		}

		if output != "" {
			printSuccess("Exported %d messages to %s", mem.Count, output)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("output", "", "output file path (default: stdout)")
}

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Trigger a fine-tuning pass on collected conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		noBackup, _ := cmd.Flags().GetBool("no-backup")

		client, _, err := newClient()
		if err != nil {
			return err
		}

		printStep("Requesting fine-tuning pass...")
		result, err := client.StartFinetune(cmd.Context(), force, !noBackup)
		if err != nil {
			return fmt.Errorf("starting fine-tuning: %w", err)
		}

		if !result.Success {
			printWarning("Training not started: %s", result.Message)
			return nil
		}
		printSuccess("Training started with %d conversations", result.TrainingDataCount)
		return nil
	},
}

func init() {
	trainCmd.Flags().Bool("force", false, "train even without a full batch of new data")
	trainCmd.Flags().Bool("no-backup", false, "skip backing up the existing model")
}

// --- reset ---

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all collected training conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will clear ALL collected training data. Use --confirm to proceed.")
			return nil
		}

		client, _, err := newClient()
		if err != nil {
			return err
		}

		result, err := client.ClearConversations(cmd.Context(), true)
		if err != nil {
			return fmt.Errorf("clearing conversations: %w", err)
		}

		printSuccess("Cleared %d conversations (backed up server-side)", result.ClearedCount)
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("confirm", false, "confirm clearing the training data")
}

// --- progress ---

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show fine-tuning batch progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		p, err := client.TrainingProgress(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetching training progress: %w", err)
		}

		printStatus("Model version", "%s", p.CurrentVersion)
		printStatus("Batch", "%d / %d conversations (%.0f%%)",
			p.CurrentConversations, p.BatchSize, p.ProgressPercentage)
		printStatus("Until training", "%d", p.ConversationsUntilTraining)
		if p.TrainingInProgress {
			printStatus("Training", "in progress")
		} else {
			printStatus("Training", "idle")
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
