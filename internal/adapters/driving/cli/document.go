package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var documentCmd = &cobra.Command{
	Use:     "document",
	Aliases: []string{"doc"},
	Short:   "Inspect and control documents",
	Long:    `List documents, show per-destination delivery state, cancel or retry.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, newest first",
	RunE:  runDocumentList,
}

var documentStatusCmd = &cobra.Command{
	Use:   "status [doc-id]",
	Short: "Show a document with its delivery breakdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentStatus,
}

var documentCancelCmd = &cobra.Command{
	Use:   "cancel [doc-id]",
	Short: "Stop further pipeline work on a document",
	Long: `Cancels a document between stages. Completed stages stay completed;
an in-flight stage finishes its work but enqueues nothing further.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentCancel,
}

var documentRetryCmd = &cobra.Command{
	Use:   "retry [doc-id] [destination-id]",
	Short: "Re-enqueue one failed delivery",
	Long: `Resets a failed or needs_reauth delivery and queues a fresh attempt.
For needs_reauth destinations, authorise first (docrelay auth authorize).`,
	Args: cobra.ExactArgs(2),
	RunE: runDocumentRetry,
}

func init() {
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentStatusCmd)
	documentCmd.AddCommand(documentCancelCmd)
	documentCmd.AddCommand(documentRetryCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docs, err := documentService.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents.")
		return nil
	}

	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Name: %s\n", docs[i].OriginalName)
		cmd.Printf("    Status: %s", docs[i].Status)
		if docs[i].FailureReason != "" {
			cmd.Printf(" (%s)", docs[i].FailureReason)
		}
		cmd.Println()
		cmd.Printf("    Received: %s\n", docs[i].CreatedAt.Format("2006-01-02 15:04:05"))
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentStatus(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	view, err := documentService.Status(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document status: %w", err)
	}

	doc := view.Document
	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Name:       %s\n", doc.OriginalName)
	cmd.Printf("  Delivered:  %s\n", doc.DeliveredName())
	cmd.Printf("  Type:       %s (%d bytes)\n", doc.MimeType, doc.Size)
	cmd.Printf("  Status:     %s", doc.Status)
	if doc.FailureReason != "" {
		cmd.Printf(" (%s)", doc.FailureReason)
	}
	cmd.Println()
	if doc.PageCount > 0 {
		cmd.Printf("  Pages:      %d\n", doc.PageCount)
	}
	cmd.Printf("  Received:   %s\n", doc.CreatedAt.Format(time.RFC3339))

	if doc.Metadata != nil {
		cmd.Println("\n  Metadata:")
		if doc.Metadata.Title != "" {
			cmd.Printf("    Title: %s\n", doc.Metadata.Title)
		}
		if doc.Metadata.Classification != "" {
			cmd.Printf("    Classification: %s\n", doc.Metadata.Classification)
		}
	}
	if doc.ExtractionError != "" {
		cmd.Printf("\n  Extraction error: %s\n", doc.ExtractionError)
	}

	if len(view.Deliveries) > 0 {
		cmd.Println("\n  Deliveries:")
		for i := range view.Deliveries {
			d := view.Deliveries[i]
			cmd.Printf("    %s: %s", d.DestinationID, d.State)
			if d.Attempts > 0 {
				cmd.Printf(" (attempt %d)", d.Attempts)
			}
			cmd.Println()
			if d.RemoteRef != "" {
				cmd.Printf("      Remote: %s\n", d.RemoteRef)
			}
			if d.LastError != "" {
				cmd.Printf("      Error: %s\n", d.LastError)
			}
			if !d.NextRetryAt.IsZero() {
				cmd.Printf("      Next retry: %s\n", d.NextRetryAt.Format(time.RFC3339))
			}
		}
	}

	return nil
}

func runDocumentCancel(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	if err := documentService.Cancel(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to cancel document: %w", err)
	}

	cmd.Printf("Document %s cancelled.\n", args[0])
	return nil
}

func runDocumentRetry(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	if err := documentService.RetryDelivery(context.Background(), args[0], args[1]); err != nil {
		return fmt.Errorf("failed to retry delivery: %w", err)
	}

	cmd.Printf("Queued a fresh delivery of %s to %s.\n", args[0], args[1])
	return nil
}
