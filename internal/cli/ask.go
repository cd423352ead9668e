package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xaenox/stylist-bot/internal/models"
	"github.com/xaenox/stylist-bot/internal/router"
	"github.com/xaenox/stylist-bot/internal/stylist"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the stylist one question from the terminal",
		Long:  "Runs a single turn and prints the reply as it streams. Use --session to continue an archived conversation.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().StringP("session", "s", "cli", "Session id")
	cmd.Flags().StringP("image", "i", "", "Image URL or base64 payload to send with the question")
	cmd.Flags().String("color", "", "Dominant color of the pictured item")
	cmd.Flags().String("item", "", "Clothing type of the pictured item")

	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	sessionID, _ := cmd.Flags().GetString("session")
	image, _ := cmd.Flags().GetString("image")
	color, _ := cmd.Flags().GetString("color")
	item, _ := cmd.Flags().GetString("item")

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := stylist.Request{Text: strings.Join(args, " ")}
	if image != "" {
		req.Image = router.ToDataURI(image)
		if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
			req.ImageRef = image
		}
	}
	if color != "" || item != "" {
		req.Metadata = &models.ImageMetadata{DominantColor: color, ClothingType: item}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session := a.sessions.GetOrCreate(ctx, sessionID)
	if _, err := session.Respond(ctx, req, printTokens(cmd.OutOrStdout())); err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	return nil
}

// printTokens writes the acknowledgment on its own line, then the reply
func printTokens(w io.Writer) func(models.StreamToken) error {
	return func(tok models.StreamToken) error {
		var err error
		switch tok.Phase {
		case models.PhaseAcknowledgment, models.PhaseComplete:
			_, err = fmt.Fprintln(w, tok.Text)
		default:
			_, err = fmt.Fprint(w, tok.Text)
		}
		return err
	}
}
