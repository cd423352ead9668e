package bot

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/settings"
	"github.com/xaenox/stylist-bot/internal/stylist"
)

const (
	defaultPhotoPrompt = "How does this look?"
	maxPhotoBytes      = 10 << 20
	historyLimit       = 5
)

// sender is the part of the Telegram API used to deliver replies
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api        *tgbotapi.BotAPI
	sender     sender
	sessions   *stylist.Registry
	selector   *settings.Selector
	httpClient *http.Client
	logger     *zap.Logger
}

func New(token string, sessions *stylist.Registry, selector *settings.Selector, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:        api,
		sender:     api,
		sessions:   sessions,
		selector:   selector,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// Start polls for updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func sessionKey(chatID int64) string {
	return fmt.Sprintf("tg:%d", chatID)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	req := stylist.Request{Text: message.Text}

	if len(message.Photo) > 0 {
		// Telegram lists sizes smallest first
		photo := message.Photo[len(message.Photo)-1]
		image, err := b.downloadPhoto(ctx, photo.FileID)
		if err != nil {
			b.logger.Error("Failed to download photo",
				zap.Error(err),
				zap.String("file_id", photo.FileID),
				zap.Int64("chat_id", message.Chat.ID))
			b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load your photo. Please try again.")
			return
		}
		req.Image = image
		req.ImageRef = "tg-file:" + photo.FileID
		req.Text = message.Caption
		if req.Text == "" {
			req.Text = defaultPhotoPrompt
		}
	}

	if strings.TrimSpace(req.Text) == "" {
		b.sendMessage(message.Chat.ID, "Send me a photo of your outfit or ask me a style question.")
		return
	}

	session := b.sessions.GetOrCreate(ctx, sessionKey(message.Chat.ID))
	sink := newReplySink(b.sender, message.Chat.ID, message.MessageID)

	if _, err := session.Respond(ctx, req, sink.onToken); err != nil {
		b.logger.Error("Failed to respond",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, userMessage(err))
	}
}

func (b *Bot) downloadPhoto(ctx context.Context, fileID string) (string, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download photo: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "models":
		b.handleModels(ctx, message)
	case "model":
		b.handleSelectModel(ctx, message)
	case "history":
		b.handleHistory(ctx, message)
	case "reset":
		b.handleReset(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to your personal stylist! 👗
Send me a photo of your outfit and I'll tell you what I think.

You can also ask follow-up questions like "what about the blue one?" and I'll remember what we talked about.
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/models - List available AI models
/model <id> - Choose the AI model
/history - Show our recent conversation
/reset - Forget our conversation and start over

You can send:
- Outfit photos (add a caption to ask something specific)
- Style questions as text`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleModels(ctx context.Context, message *tgbotapi.Message) {
	current := b.selector.Current(ctx)

	response := "*Available models:*\n"
	for _, m := range b.selector.Catalog() {
		marker := ""
		if m.ID == current.ID {
			marker = " ✅"
		}
		response += fmt.Sprintf("`%s` %s \\(quality %d, %s\\)%s\n",
			m.ID, escapeMarkdown(m.Name), m.Quality, escapeMarkdown(string(m.Speed)), marker)
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, response)
	msg.ParseMode = "MarkdownV2"
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send models message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleSelectModel(ctx context.Context, message *tgbotapi.Message) {
	id := strings.TrimSpace(message.CommandArguments())
	if id == "" {
		b.sendMessage(message.Chat.ID, "Usage: /model <id>. Use /models to list ids.")
		return
	}

	m, err := b.selector.Select(ctx, id)
	if err != nil {
		b.logger.Warn("Failed to select model",
			zap.Error(err),
			zap.String("model_id", id),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, fmt.Sprintf("I don't know a model called %q.", id))
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Now using %s.", m.Name))
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	session := b.sessions.GetOrCreate(ctx, sessionKey(message.Chat.ID))
	exchanges, err := session.History(ctx, historyLimit)
	if err != nil {
		b.logger.Error("Failed to get history",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve our conversation.")
		return
	}

	if len(exchanges) == 0 {
		b.sendMessage(message.Chat.ID, "We haven't talked yet.")
		return
	}

	response := "*Our recent conversation:*\n\n"
	for _, ex := range exchanges {
		response += fmt.Sprintf("*You:* _%s_\n", escapeMarkdown(ex.UserUtterance))
		response += fmt.Sprintf("*Me:* %s\n", escapeMarkdown(ex.AIReply))
		if len(ex.DetectedItems) > 0 {
			tags := make([]string, len(ex.DetectedItems))
			for i, item := range ex.DetectedItems {
				tags[i] = escapeMarkdown("#" + strings.ReplaceAll(item, " ", "_"))
			}
			response += fmt.Sprintf("%s\n", strings.Join(tags, " "))
		}
		response += "\n"
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, response)
	msg.ParseMode = "MarkdownV2"
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send history message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleReset(ctx context.Context, message *tgbotapi.Message) {
	session := b.sessions.GetOrCreate(ctx, sessionKey(message.Chat.ID))
	if err := session.Reset(ctx); err != nil {
		b.logger.Error("Failed to reset session",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't reset our conversation.")
		return
	}
	b.sendMessage(message.Chat.ID, "Fresh start! Send me your next outfit.")
}

// escapeMarkdown escapes special characters for MarkdownV2
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
