package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"w4u-wizard-api/internal/application/editorial"
)

func newSanitizeCmd(app *App) *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "sanitize [text...]",
		Short: "Clean text with the editorial pipeline (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = string(raw)
			}

			locale := app.Locale
			if locale == nil {
				locale = editorial.DefaultLocale
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), locale.Sanitize(editorial.Method(method), text))
			return err
		},
	}

	cmd.Flags().StringVar(&method, "method", string(editorial.MethodDefault),
		"Pipeline: chapter_title | editorial | default")
	return cmd
}
