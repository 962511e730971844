package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/docrelay/docrelay/internal/adapters/driving/oauth"
)

// Callback port range probed for the local redirect listener.
const (
	callbackPortStart = 8484
	callbackPortEnd   = 8584
)

// authorizeTimeout bounds how long we wait for the browser redirect.
const authorizeTimeout = 5 * time.Minute

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage destination authorisations",
	Long: `Authorise, inspect and revoke OAuth credentials for cloud-drive
destinations (googledrive, dropbox).

The OAuth client id and secret come from settings (oauth.client_id,
oauth.client_secret). Authorisation opens the provider's consent page in
your browser and completes through a local callback server.`,
}

var authAuthorizeCmd = &cobra.Command{
	Use:   "authorize [destination-id]",
	Short: "Run the OAuth flow for a destination",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthAuthorize,
}

var authStatusCmd = &cobra.Command{
	Use:   "status [destination-id]",
	Short: "Show the credential lifecycle state",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthStatus,
}

var authRevokeCmd = &cobra.Command{
	Use:   "revoke [destination-id]",
	Short: "Forget a destination's tokens",
	Long: `Forgets the stored tokens for a destination. Pending deliveries to it
surface as needs_reauth until the destination is authorised again.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthRevoke,
}

// authNoBrowser skips opening the browser; the consent URL is printed
// instead.
var authNoBrowser bool

func init() {
	authAuthorizeCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false,
		"Print the consent URL instead of opening a browser")

	authCmd.AddCommand(authAuthorizeCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRevokeCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthAuthorize(cmd *cobra.Command, args []string) error {
	if credentialService == nil {
		return errors.New("credential service not configured")
	}

	ctx := context.Background()
	destID := args[0]

	port, err := oauth.FindAvailablePort(callbackPortStart, callbackPortEnd)
	if err != nil {
		return fmt.Errorf("no port for the callback server: %w", err)
	}

	flow, err := credentialService.BeginAuthorization(ctx, destID, port)
	if err != nil {
		return fmt.Errorf("failed to start authorisation: %w", err)
	}

	server := oauth.NewCallbackServer(port, flow.State)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}
	defer server.Stop() //nolint:errcheck // Best-effort shutdown

	if authNoBrowser {
		cmd.Println("Open this URL in your browser to authorise:")
		cmd.Println()
		cmd.Printf("  %s\n", flow.AuthURL)
	} else {
		cmd.Println("Opening your browser for authorisation...")
		if err := oauth.OpenBrowser(flow.AuthURL); err != nil {
			cmd.Println("Could not open a browser. Open this URL manually:")
			cmd.Println()
			cmd.Printf("  %s\n", flow.AuthURL)
		}
	}
	cmd.Println()
	cmd.Printf("Waiting for the callback on %s...\n", flow.RedirectURI)

	code, err := server.WaitForCode(authorizeTimeout)
	if err != nil {
		return fmt.Errorf("authorisation did not complete: %w", err)
	}

	if err := credentialService.CompleteAuthorization(ctx, flow.State, code); err != nil {
		return fmt.Errorf("failed to complete authorisation: %w", err)
	}

	cmd.Printf("Destination %s authorised.\n", destID)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	if credentialService == nil {
		return errors.New("credential service not configured")
	}

	state, err := credentialService.Status(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get credential status: %w", err)
	}

	cmd.Printf("Credential state for %s: %s\n", args[0], state)
	return nil
}

func runAuthRevoke(cmd *cobra.Command, args []string) error {
	if credentialService == nil {
		return errors.New("credential service not configured")
	}

	if err := credentialService.Revoke(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to revoke credential: %w", err)
	}

	cmd.Printf("Revoked credential for destination %s.\n", args[0])
	return nil
}
