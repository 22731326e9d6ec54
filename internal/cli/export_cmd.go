package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"w4u-wizard-api/internal/application/export"
)

func newExportCmd(app *App) *cobra.Command {
	var (
		bookID string
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a book as EPUB, DOCX or PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, ok := export.ParseFormat(format)
			if !ok {
				return fmt.Errorf("unsupported format %q (want epub, docx or pdf)", format)
			}
			if app.OpenExporter == nil {
				return fmt.Errorf("export is not configured")
			}

			ctx := cmd.Context()
			exporter, closeFn, err := app.OpenExporter(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			artifact, err := exporter.Export(ctx, bookID, f)
			if err != nil {
				return err
			}
			defer func() { _ = artifact.Cleanup() }()

			if out == "" {
				out = artifact.Filename
			}
			if err := copyFile(artifact.Path, out); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d chapters, %d bytes)\n", out, artifact.Chapters, artifact.Size)
			return err
		},
	}

	cmd.Flags().StringVar(&bookID, "book", "", "Book ID")
	cmd.Flags().StringVar(&format, "format", string(export.FormatEPUB), "Output format: epub | docx | pdf")
	cmd.Flags().StringVar(&out, "out", "", "Output path (defaults to a name derived from the title)")
	_ = cmd.MarkFlagRequired("book")
	return cmd
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer in.Close()

	outFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(outFile, in); err != nil {
		_ = outFile.Close()
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return outFile.Close()
}
