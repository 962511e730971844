package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docrelay/docrelay/internal/core/ports/driving"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [file...]",
	Short: "Ingest local files into the pipeline",
	Long: `Ingests one or more local files. Each file is validated, stored and
queued for conversion; delivery happens asynchronously once the pipeline
workers pick the document up (see 'docrelay serve').`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Fetch a remote document and ingest it",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

// uploadDeclaredType is the optional claimed MIME type for uploads. The
// gate sniffs content regardless and distrusts a mismatching claim.
var uploadDeclaredType string

func init() {
	uploadCmd.Flags().StringVar(&uploadDeclaredType, "type", "", "Declared MIME type (advisory)")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(fetchCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	ctx := context.Background()
	var failed int

	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			cmd.Printf("  %s: %v\n", path, err)
			failed++
			continue
		}

		doc, err := ingestService.Ingest(ctx, driving.IngestRequest{
			Filename:     filepath.Base(path),
			Content:      f,
			DeclaredType: uploadDeclaredType,
		})
		f.Close()

		if err != nil {
			cmd.Printf("  %s: %v\n", path, err)
			failed++
			continue
		}

		cmd.Printf("  %s -> %s (%s, %d bytes)\n", doc.OriginalName, doc.ID, doc.MimeType, doc.Size)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files rejected", failed, len(args))
	}
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	doc, err := ingestService.IngestURL(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to fetch document: %w", err)
	}

	cmd.Printf("Fetched %s -> %s (%s, %d bytes)\n", doc.OriginalName, doc.ID, doc.MimeType, doc.Size)
	return nil
}
