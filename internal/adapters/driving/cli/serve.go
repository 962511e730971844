package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// rendererWait bounds how long serve probes the renderer before giving up.
const rendererWait = 2 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline workers",
	Long: `Claims tasks from the durable queue and runs the pipeline stages
(convert, extract, dispatch, deliver) until interrupted. Also watches
the inbox directory when one is configured (ingest.inbox_dir).

The renderer endpoint is probed before workers start; serve fails when
it stays unreachable.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if pipelineRunner == nil {
		return errors.New("pipeline not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if rendererHealth != nil {
		cmd.Print("Waiting for the renderer... ")
		if err := waitForRenderer(ctx); err != nil {
			cmd.Println("FAILED")
			return fmt.Errorf("renderer not reachable: %w", err)
		}
		cmd.Println("OK")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pipelineRunner.Run(ctx)
	})
	if inboxRunner != nil {
		g.Go(func() error {
			return inboxRunner.Run(ctx)
		})
	}

	cmd.Println("Pipeline running. Press Ctrl+C to stop.")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		cmd.Println("Shutting down.")
		return nil
	}
	return err
}

// waitForRenderer probes the renderer with bounded exponential backoff.
// A slow container start is normal; a renderer that stays down is not.
func waitForRenderer(ctx context.Context) error {
	backoff := retry.WithMaxDuration(rendererWait, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := rendererHealth.Healthy(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
