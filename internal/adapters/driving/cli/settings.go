package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docrelay/docrelay/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure pipeline settings.

Every key resolves through the precedence chain: config-file override,
then database, then environment variable, then built-in default. Writes
always land in the database layer; overrides and environment stay
untouched.

The environment variable for a key is DOCRELAY_ plus the key upper-cased
with dots replaced by underscores (ingest.max_size -> DOCRELAY_INGEST_MAX_SIZE).`,
	RunE: runSettingsList,
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every setting and where its value comes from",
	RunE:  runSettingsList,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Resolve one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Write a setting into the database layer",
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsSet,
}

var settingsUnsetCmd = &cobra.Command{
	Use:   "unset [key]",
	Short: "Remove the database-layer value for a key",
	Long: `Removes the database-layer value so resolution falls through to the
environment variable or the built-in default.`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsUnset,
}

func init() {
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsUnsetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsList(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.ResolveAll(context.Background())
	if err != nil {
		return fmt.Errorf("failed to resolve settings: %w", err)
	}

	cmd.Println("Settings")
	cmd.Println("========")
	cmd.Println()
	for _, s := range settings {
		printSetting(cmd, s)
	}

	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	setting, err := settingsService.Resolve(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve setting: %w", err)
	}

	printSetting(cmd, setting)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key, value := args[0], args[1]
	if err := settingsService.Set(context.Background(), key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	cmd.Printf("Set %s.\n", key)
	return nil
}

func runSettingsUnset(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	if err := settingsService.Unset(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to unset %s: %w", args[0], err)
	}

	cmd.Printf("Unset %s.\n", args[0])
	return nil
}

// printSetting renders one resolved setting with its source layer.
// Sensitive values are always redacted.
func printSetting(cmd *cobra.Command, s domain.Setting) {
	value := s.Redacted()
	if s.Source == domain.SourceUnset {
		value = "(not set)"
	}
	cmd.Printf("  %-28s %-20s [%s]\n", s.Key, value, s.Source)
}
