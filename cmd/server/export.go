package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/franckalain/fooddeclare/internal/database"
	"github.com/franckalain/fooddeclare/internal/export"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render the declaration list as a PDF",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().String("out", export.FileName, "output file")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("out")

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	items := a.items.Items()
	var buf bytes.Buffer
	meta := export.Meta{Date: time.Now(), Destination: a.prefs.Country()}
	if err := export.NewPDFExporter().Export(&buf, items, meta); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	if err := database.AtomicWriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	log.Info().Str("path", outPath).Int("items", len(items)).Int("size", buf.Len()).Msg("Declaration exported")
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d items to %s\n", len(items), outPath)
	return nil
}
