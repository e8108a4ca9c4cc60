package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/franckalain/fooddeclare/internal/capture"
	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/franckalain/fooddeclare/internal/pipeline"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Recognize one item from a photo or a search",
	Long: `scan runs a photo or a search through recognition and prints the draft.
With --commit the draft is added to the list when brand, name and weight
were all recognized; otherwise the missing fields are reported.`,
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.String("image", "", "photo of the product")
	f.String("query", "", "product to search for")
	f.Bool("commit", false, "add the draft to the list")

	scanCmd.MarkFlagsMutuallyExclusive("image", "query")
	scanCmd.MarkFlagsOneRequired("image", "query")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	imagePath, _ := cmd.Flags().GetString("image")
	query, _ := cmd.Flags().GetString("query")
	commit, _ := cmd.Flags().GetBool("commit")
	ctx := cmd.Context()

	in, err := pendingInput(imagePath, query)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.loadModel(ctx); err != nil {
		return err
	}

	wf := pipeline.NewWorkflow(a.dispatcher(), pipeline.NewReconciler(), a.items)
	rec, err := wf.Scan(ctx, in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printRecord(out, rec)
	if !commit {
		return nil
	}

	item, err := wf.Save(ctx, rec.Fields())
	var verr *apperrors.ValidationError
	switch {
	case errors.As(err, &verr):
		return fmt.Errorf("draft is incomplete, fill in: %v", verr.Fields)
	case err != nil:
		return err
	}
	fmt.Fprintf(out, "Added %s\n", item.ID)
	return nil
}

func pendingInput(imagePath, query string) (models.PendingInput, error) {
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return models.PendingInput{}, fmt.Errorf("failed to read image: %w", err)
		}
		return capture.FromUploadedFile(data)
	}

	in, ok := capture.FromTypedQuery(query)
	if !ok {
		return models.PendingInput{}, errors.New("query is blank")
	}
	return in, nil
}

func printRecord(w io.Writer, rec pipeline.EditableRecord) {
	fmt.Fprintf(w, "Result:      %s\n", rec.Completeness)
	if rec.FailureReason != "" {
		fmt.Fprintf(w, "Reason:      %s\n", rec.FailureReason)
	}
	fmt.Fprintf(w, "Brand:       %s\n", rec.Brand)
	fmt.Fprintf(w, "Name:        %s\n", rec.Name)
	fmt.Fprintf(w, "Ingredients: %s\n", rec.Ingredients)
	fmt.Fprintf(w, "Weight:      %s\n", rec.Weight)
	fmt.Fprintf(w, "Quantity:    %d\n", rec.Quantity)
}
