package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xaenox/stylist-bot/internal/apperr"
	"github.com/xaenox/stylist-bot/internal/models"
)

// minEditInterval keeps message edits under Telegram's per-chat rate limit
const minEditInterval = time.Second

// replySink renders a progressive response as one Telegram message that is
// sent on the first token and edited as more text arrives
type replySink struct {
	sender    sender
	chatID    int64
	replyTo   int
	messageID int
	text      strings.Builder
	lastEdit  time.Time
	now       func() time.Time
}

func newReplySink(s sender, chatID int64, replyTo int) *replySink {
	return &replySink{
		sender:  s,
		chatID:  chatID,
		replyTo: replyTo,
		now:     time.Now,
	}
}

func (r *replySink) onToken(tok models.StreamToken) error {
	r.text.WriteString(tok.Text)
	body := strings.TrimSpace(r.text.String())

	if r.messageID == 0 {
		if body == "" {
			return nil
		}
		msg := tgbotapi.NewMessage(r.chatID, body)
		msg.ReplyToMessageID = r.replyTo
		sent, err := r.sender.Send(msg)
		if err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
		r.messageID = sent.MessageID
		r.lastEdit = r.now()
		return nil
	}

	if tok.Phase != models.PhaseComplete && r.now().Sub(r.lastEdit) < minEditInterval {
		return nil
	}
	edit := tgbotapi.NewEditMessageText(r.chatID, r.messageID, body)
	if _, err := r.sender.Send(edit); err != nil {
		return fmt.Errorf("edit reply: %w", err)
	}
	r.lastEdit = r.now()
	return nil
}

// userMessage turns a failed turn into text fit for the chat
func userMessage(err error) string {
	var (
		timeoutErr *apperr.TimeoutError
		emptyErr   *apperr.EmptyResponseError
		apiErr     *apperr.APIError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return "The stylist took too long to answer. Please try again."
	case errors.As(err, &emptyErr) && emptyErr.BlockReason != "":
		return "Sorry, I can't comment on that one. Try a different photo."
	case errors.As(err, &emptyErr):
		return "I couldn't come up with an answer. Please try again."
	case errors.As(err, &apiErr):
		return fmt.Sprintf("The style service is having trouble right now (%d). Please try again later.", apiErr.StatusCode)
	default:
		return "Sorry, something went wrong. Please try again."
	}
}
