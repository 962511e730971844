package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docrelay/docrelay/internal/core/domain"
)

var destinationCmd = &cobra.Command{
	Use:     "destination",
	Aliases: []string{"dest"},
	Short:   "Manage delivery destinations",
	Long: `Add, list, test and remove delivery destinations.

Each destination names a provider from the closed set (googledrive,
dropbox, s3, webdav, sftp, paperless, mail) plus provider-specific
settings. Cloud-drive providers additionally need an OAuth
authorisation (see 'docrelay auth').`,
}

var destinationAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new destination",
	Long: `Add a new delivery destination.

Examples:
  docrelay destination add --name "Archive" --provider webdav \
    -s url=https://cloud.example.org/remote.php/dav/files/alice -s username=alice

  docrelay destination add --name "Tax" --provider googledrive \
    --path-template "{yyyy}/{mm}"`,
	RunE: runDestinationAdd,
}

var destinationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured destinations",
	RunE:  runDestinationList,
}

var destinationShowCmd = &cobra.Command{
	Use:   "show [destination-id]",
	Short: "Show one destination in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runDestinationShow,
}

var destinationEnableCmd = &cobra.Command{
	Use:   "enable [destination-id]",
	Short: "Include a destination in dispatch fan-out",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setDestinationEnabled(cmd, args[0], true) },
}

var destinationDisableCmd = &cobra.Command{
	Use:   "disable [destination-id]",
	Short: "Exclude a destination from dispatch fan-out",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setDestinationEnabled(cmd, args[0], false) },
}

var destinationTestCmd = &cobra.Command{
	Use:   "test [destination-id]",
	Short: "Verify a destination is reachable",
	Args:  cobra.ExactArgs(1),
	RunE:  runDestinationTest,
}

var destinationRemoveCmd = &cobra.Command{
	Use:   "remove [destination-id]",
	Short: "Remove a destination",
	Long: `Removes a destination configuration and its stored credential.
Existing delivery records are kept for history.`,
	Args: cobra.ExactArgs(1),
	RunE: runDestinationRemove,
}

// Flags for destination add.
var (
	destAddName         string
	destAddProvider     string
	destAddPathTemplate string
	destAddSettings     []string
	destAddDisabled     bool
)

func init() {
	destinationAddCmd.Flags().StringVar(&destAddName, "name", "", "Display name for the destination")
	destinationAddCmd.Flags().StringVar(&destAddProvider, "provider", "",
		"Provider type (googledrive, dropbox, s3, webdav, sftp, paperless, mail)")
	destinationAddCmd.Flags().StringVar(&destAddPathTemplate, "path-template", "",
		"Remote path template, placeholders {yyyy} {mm} {dd} {title} {name}")
	destinationAddCmd.Flags().StringArrayVarP(&destAddSettings, "setting", "s", nil,
		"Provider setting as key=value (repeatable)")
	destinationAddCmd.Flags().BoolVar(&destAddDisabled, "disabled", false,
		"Create the destination excluded from fan-out")

	destinationCmd.AddCommand(destinationAddCmd)
	destinationCmd.AddCommand(destinationListCmd)
	destinationCmd.AddCommand(destinationShowCmd)
	destinationCmd.AddCommand(destinationEnableCmd)
	destinationCmd.AddCommand(destinationDisableCmd)
	destinationCmd.AddCommand(destinationTestCmd)
	destinationCmd.AddCommand(destinationRemoveCmd)
	rootCmd.AddCommand(destinationCmd)
}

func runDestinationAdd(cmd *cobra.Command, _ []string) error {
	if destinationService == nil {
		return errors.New("destination service not configured")
	}

	settings, err := parseSettingPairs(destAddSettings)
	if err != nil {
		return err
	}

	dest, err := destinationService.Save(context.Background(), domain.DestinationConfig{
		Name:         destAddName,
		Provider:     domain.ProviderType(destAddProvider),
		Enabled:      !destAddDisabled,
		PathTemplate: destAddPathTemplate,
		Settings:     settings,
	})
	if err != nil {
		return fmt.Errorf("failed to add destination: %w", err)
	}

	cmd.Printf("Destination created: %s\n", dest.ID)
	if dest.Provider.RequiresOAuth() {
		cmd.Printf("This provider needs authorisation. Run: docrelay auth authorize %s\n", dest.ID)
	}
	return nil
}

func runDestinationList(cmd *cobra.Command, _ []string) error {
	if destinationService == nil {
		return errors.New("destination service not configured")
	}

	dests, err := destinationService.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list destinations: %w", err)
	}

	if len(dests) == 0 {
		cmd.Println("No configured destinations.")
		cmd.Println("Add one with: docrelay destination add")
		return nil
	}

	cmd.Println("Configured destinations:")
	cmd.Println()
	for i := range dests {
		state := "enabled"
		if !dests[i].Enabled {
			state = "disabled"
		}
		cmd.Printf("  %s\n", dests[i].ID)
		cmd.Printf("    Name: %s\n", dests[i].Name)
		cmd.Printf("    Provider: %s (%s)\n", dests[i].Provider, state)
		if dests[i].PathTemplate != "" {
			cmd.Printf("    Path template: %s\n", dests[i].PathTemplate)
		}
		cmd.Println()
	}

	return nil
}

func runDestinationShow(cmd *cobra.Command, args []string) error {
	if destinationService == nil {
		return errors.New("destination service not configured")
	}

	ctx := context.Background()
	dest, err := destinationService.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("destination not found: %w", err)
	}

	cmd.Printf("Destination: %s\n\n", dest.ID)
	cmd.Printf("  Name:          %s\n", dest.Name)
	cmd.Printf("  Provider:      %s\n", dest.Provider.Description())
	cmd.Printf("  Enabled:       %t\n", dest.Enabled)
	if dest.PathTemplate != "" {
		cmd.Printf("  Path template: %s\n", dest.PathTemplate)
	}
	cmd.Printf("  Created:       %s\n", dest.CreatedAt.Format(time.RFC3339))

	if len(dest.Settings) > 0 {
		cmd.Println("\n  Settings:")
		for k, v := range dest.Settings {
			cmd.Printf("    %s: %s\n", k, v)
		}
	}

	if dest.Provider.RequiresOAuth() && credentialService != nil {
		state, err := credentialService.Status(ctx, dest.ID)
		if err == nil {
			cmd.Printf("\n  Credential:    %s\n", state)
		}
	}

	return nil
}

func setDestinationEnabled(cmd *cobra.Command, id string, enabled bool) error {
	if destinationService == nil {
		return errors.New("destination service not configured")
	}

	if err := destinationService.SetEnabled(context.Background(), id, enabled); err != nil {
		return fmt.Errorf("failed to update destination: %w", err)
	}

	if enabled {
		cmd.Printf("Destination %s enabled.\n", id)
	} else {
		cmd.Printf("Destination %s disabled.\n", id)
	}
	return nil
}

func runDestinationTest(cmd *cobra.Command, args []string) error {
	if destinationService == nil {
		return errors.New("destination service not configured")
	}

	cmd.Printf("Testing destination %s... ", args[0])
	if err := destinationService.TestConnection(context.Background(), args[0]); err != nil {
		cmd.Println("FAILED")
		return fmt.Errorf("connection test failed: %w", err)
	}
	cmd.Println("OK")
	return nil
}

func runDestinationRemove(cmd *cobra.Command, args []string) error {
	if destinationService == nil {
		return errors.New("destination service not configured")
	}

	ctx := context.Background()
	dest, err := destinationService.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("destination not found: %w", err)
	}

	if err := destinationService.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to remove destination: %w", err)
	}

	cmd.Printf("Removed destination: %s (%s)\n", dest.Name, dest.ID)
	return nil
}

// parseSettingPairs splits repeated key=value flags into a map.
func parseSettingPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	settings := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid setting %q, expected key=value", pair)
		}
		settings[key] = value
	}
	return settings, nil
}
