package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/droidgram/droidgram/pkg/bus"
	"github.com/droidgram/droidgram/pkg/config"
	"github.com/droidgram/droidgram/pkg/logger"
	"github.com/droidgram/droidgram/pkg/utils"
)

const (
	telegramPollTimeoutSec  = 30
	telegramMaxCaptionRunes = 1024
	telegramFileURL         = "https://api.telegram.org/file/bot%s/%s"
)

type TelegramChannel struct {
	*BaseChannel
	bot    *telego.Bot
	config config.TelegramConfig
	cancel context.CancelFunc

	placeholderMu sync.Mutex
	placeholders  map[int64]int
}

// NewTelegramBot builds a telego bot honoring an optional HTTP proxy.
// Shared with the setup wizard, which validates tokens before saving.
func NewTelegramBot(token, proxy string) (*telego.Bot, error) {
	opts := []telego.BotOption{telego.WithDiscardLogger()}
	if strings.TrimSpace(proxy) != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		}))
	}
	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return bot, nil
}

func NewTelegramChannel(cfg config.TelegramConfig, messageBus *bus.MessageBus) (*TelegramChannel, error) {
	bot, err := NewTelegramBot(cfg.Token, cfg.Proxy)
	if err != nil {
		return nil, err
	}

	return &TelegramChannel{
		BaseChannel:  NewBaseChannel("telegram", cfg, messageBus, cfg.AllowFrom),
		bot:          bot,
		config:       cfg,
		placeholders: make(map[int64]int),
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot")

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	updates, err := c.bot.UpdatesViaLongPolling(runCtx, &telego.GetUpdatesParams{
		Timeout: telegramPollTimeoutSec,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("telegram long polling: %w", err)
	}

	c.setRunning(true)
	go c.consumeUpdates(runCtx, updates)

	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": c.bot.Username(),
	})
	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot")
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *TelegramChannel) consumeUpdates(ctx context.Context, updates <-chan telego.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			c.handleUpdate(ctx, update)
		}
	}
}

func (c *TelegramChannel) handleUpdate(ctx context.Context, update telego.Update) {
	m := update.Message
	if m == nil || m.From == nil || m.From.IsBot {
		return
	}

	senderID := strconv.FormatInt(m.From.ID, 10)
	if m.From.Username != "" {
		senderID += "|" + m.From.Username
	}
	if !c.IsAllowed(senderID) {
		logger.DebugCF("telegram", "Message rejected by allowlist", map[string]interface{}{
			"sender_id": senderID,
		})
		return
	}
	if c.isDuplicate(fmt.Sprintf("%d:%d", m.Chat.ID, m.MessageID)) {
		return
	}

	content := m.Text
	if content == "" {
		content = m.Caption
	}
	if uname := c.bot.Username(); uname != "" {
		content = strings.TrimSpace(strings.ReplaceAll(content, "@"+uname, ""))
	}

	var media []string
	if m.Document != nil {
		name := m.Document.FileName
		if name == "" {
			name = "document"
		}
		if saved := c.saveTelegramFile(ctx, m.Document.FileID, name); saved != "" {
			media = append(media, saved)
			content = appendContent(content, fmt.Sprintf("[file saved: %s]", saved))
		} else {
			content = appendContent(content, fmt.Sprintf("[file: %s]", name))
		}
	}
	if m.Voice != nil {
		if saved := c.saveTelegramFile(ctx, m.Voice.FileID, "voice.oga"); saved != "" {
			media = append(media, saved)
			content = appendContent(content, fmt.Sprintf("[audio file saved: %s]", saved))
		} else {
			content = appendContent(content, "[voice message]")
		}
	}
	if m.Audio != nil {
		name := m.Audio.FileName
		if name == "" {
			name = "audio.mp3"
		}
		if saved := c.saveTelegramFile(ctx, m.Audio.FileID, name); saved != "" {
			media = append(media, saved)
			content = appendContent(content, fmt.Sprintf("[audio file saved: %s]", saved))
		} else {
			content = appendContent(content, fmt.Sprintf("[audio: %s]", name))
		}
	}
	if len(m.Photo) > 0 {
		largest := m.Photo[len(m.Photo)-1]
		if saved := c.saveTelegramFile(ctx, largest.FileID, "photo.jpg"); saved != "" {
			media = append(media, saved)
			content = appendContent(content, fmt.Sprintf("[photo saved: %s]", saved))
		} else {
			content = appendContent(content, "[photo]")
		}
	}

	if strings.TrimSpace(content) == "" && len(media) == 0 {
		return
	}
	if strings.TrimSpace(content) == "" {
		content = "[media only]"
	}

	logger.DebugCF("telegram", "Received message", map[string]interface{}{
		"sender_id": senderID,
		"chat_id":   m.Chat.ID,
		"preview":   utils.Truncate(content, 50),
	})

	_ = c.bot.SendChatAction(ctx, &telego.SendChatActionParams{
		ChatID: tu.ID(m.Chat.ID),
		Action: "typing",
	})
	c.sendPlaceholder(ctx, m.Chat.ID)

	metadata := map[string]string{
		"message_id": strconv.Itoa(m.MessageID),
		"user_id":    strconv.FormatInt(m.From.ID, 10),
		"username":   m.From.Username,
		"chat_type":  string(m.Chat.Type),
	}
	c.HandleMessage(senderID, strconv.FormatInt(m.Chat.ID, 10), content, media, metadata)
}

// saveTelegramFile resolves a file ID through getFile, downloads it, and
// stashes it in the media dir. Returns "" when downloads are disabled or
// anything fails.
func (c *TelegramChannel) saveTelegramFile(ctx context.Context, fileID, fallbackName string) string {
	if c.mediaDir == "" {
		return ""
	}

	f, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		logger.WarnCF("telegram", "Resolving file failed", map[string]interface{}{
			"file_id": fileID,
			"error":   err.Error(),
		})
		return ""
	}

	name := path.Base(f.FilePath)
	if name == "" || name == "." {
		name = fallbackName
	}
	fileURL := fmt.Sprintf(telegramFileURL, c.config.Token, f.FilePath)
	tmp := utils.DownloadFile(fileURL, name, utils.DownloadOptions{LoggerPrefix: "telegram"})
	if tmp == "" {
		return ""
	}
	return c.stashMedia(tmp, name)
}

// sendPlaceholder posts a pending marker that the reply later edits in
// place. A previous unconsumed placeholder for the chat is deleted so
// rapid-fire messages don't leave markers behind.
func (c *TelegramChannel) sendPlaceholder(ctx context.Context, chatID int64) {
	sent, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), "…"))
	if err != nil || sent == nil {
		return
	}

	if old := c.swapPlaceholder(chatID, sent.MessageID); old != nil {
		_ = c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
			ChatID:    tu.ID(chatID),
			MessageID: *old,
		})
	}
}

// swapPlaceholder records a new placeholder ID and returns the one it
// displaced, if any.
func (c *TelegramChannel) swapPlaceholder(chatID int64, messageID int) *int {
	c.placeholderMu.Lock()
	defer c.placeholderMu.Unlock()

	var old *int
	if prev, ok := c.placeholders[chatID]; ok {
		old = &prev
	}
	c.placeholders[chatID] = messageID
	return old
}

// takePlaceholder consumes the pending placeholder for a chat.
func (c *TelegramChannel) takePlaceholder(chatID int64) *int {
	c.placeholderMu.Lock()
	defer c.placeholderMu.Unlock()

	if id, ok := c.placeholders[chatID]; ok {
		delete(c.placeholders, chatID)
		return &id
	}
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.ChatID), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	placeholder := c.takePlaceholder(chatID)
	content := msg.Content
	if strings.TrimSpace(content) == "" && len(msg.Attachments) == 0 {
		content = "[empty message]"
	}

	if len(msg.Attachments) > 0 {
		return c.sendWithAttachments(sendCtx, chatID, placeholder, content, msg.Attachments)
	}
	return c.deliverText(sendCtx, chatID, placeholder, content)
}

// deliverText tries one HTML-rendered message first; Telegram rejects
// malformed entities with a 400, in which case the raw text goes out as
// plain chunks.
func (c *TelegramChannel) deliverText(ctx context.Context, chatID int64, placeholder *int, content string) error {
	html := markdownToTelegramHTML(content)
	if runeCount(html) <= telegramMaxMessageRunes {
		err := sendOrEditTelegramMessage(ctx, c.bot, chatID, placeholder, html, "HTML")
		if err == nil {
			return nil
		}
		logger.DebugCF("telegram", "HTML send failed, falling back to plain text", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
	return sendTelegramPlainChunks(ctx, c.bot, chatID, placeholder, content)
}

func (c *TelegramChannel) sendWithAttachments(ctx context.Context, chatID int64, placeholder *int, content string, attachments []bus.OutboundAttachment) error {
	if placeholder != nil {
		_ = c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
			ChatID:    tu.ID(chatID),
			MessageID: *placeholder,
		})
	}

	caption := ""
	if strings.TrimSpace(content) != "" && runeCount(content) <= telegramMaxCaptionRunes {
		caption = content
		content = ""
	}

	for i, att := range attachments {
		f, err := os.Open(att.Path)
		if err != nil {
			return fmt.Errorf("open attachment %q: %w", att.Path, err)
		}

		name := strings.TrimSpace(att.Filename)
		if name == "" {
			name = path.Base(att.Path)
		}
		params := &telego.SendDocumentParams{
			ChatID:   tu.ID(chatID),
			Document: tu.File(tu.NameReader(f, name)),
		}
		if i == 0 && caption != "" {
			params.Caption = caption
		}
		_, err = c.bot.SendDocument(ctx, params)
		f.Close()
		if err != nil {
			return fmt.Errorf("send document %q: %w", name, err)
		}
	}

	if strings.TrimSpace(content) != "" {
		return c.deliverText(ctx, chatID, nil, content)
	}
	return nil
}
