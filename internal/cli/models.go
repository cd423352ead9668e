package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xaenox/stylist-bot/internal/models"
)

func init() {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List AI models or change the selected one",
		Long:  "Prints the model catalog with the current selection. With --select, persists a new selection first.",
		RunE:  runModels,
	}

	cmd.Flags().StringP("select", "s", "", "Model id to select")
	cmd.Flags().StringP("format", "f", "text", "Output format: json or text")

	RootCmd.AddCommand(cmd)
}

type modelListing struct {
	Selected string                   `json:"selected"`
	Models   []models.ModelDescriptor `json:"models"`
}

func runModels(cmd *cobra.Command, args []string) error {
	selectID, _ := cmd.Flags().GetString("select")
	format, _ := cmd.Flags().GetString("format")

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if selectID != "" {
		if _, err := a.selector.Select(ctx, selectID); err != nil {
			return err
		}
	}

	listing := modelListing{
		Selected: a.selector.Current(ctx).ID,
		Models:   a.selector.Catalog(),
	}
	return writeModels(cmd.OutOrStdout(), listing, format)
}

func writeModels(w io.Writer, listing modelListing, format string) error {
	if format == "json" {
		b, err := json.MarshalIndent(listing, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	for _, m := range listing.Models {
		marker := " "
		if m.ID == listing.Selected {
			marker = "*"
		}
		rec := ""
		if m.IsRecommended {
			rec = " (recommended)"
		}
		if _, err := fmt.Fprintf(w, "%s %-28s %-14s quality=%d speed=%s tier=%d%s\n",
			marker, m.ID, m.Provider, m.Quality, m.Speed, m.Tier, rec); err != nil {
			return err
		}
	}
	return nil
}
