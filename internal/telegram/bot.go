package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ObiAU/citypulse/internal/feed"
	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/models"
	"github.com/ObiAU/citypulse/internal/store"
)

const feedPageSize = 5

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type FeedQuerier interface {
	Query(ctx context.Context, city string, pulses []string, limit int) ([]feed.Item, error)
}

// Deps are the read and write paths the bot commands use.
type Deps struct {
	Feed        FeedQuerier
	Content     store.ContentStore
	Collections store.CollectionStore
	Preferences store.PreferenceStore
	Cities      models.Cities
}

type Bot struct {
	api        *tgbotapi.BotAPI
	sender     sender
	webhookURL string
	deps       Deps
	log        logger.Logger
}

func NewBot(token, webhookURL string, deps Deps, log logger.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b := newBot(api, deps, log)
	b.api = api
	b.webhookURL = webhookURL
	return b, nil
}

func newBot(s sender, deps Deps, log logger.Logger) *Bot {
	if log == nil {
		log = logger.NewNop()
	}
	if len(deps.Cities) == 0 {
		deps.Cities = models.DefaultCities
	}
	return &Bot{sender: s, deps: deps, log: log}
}

// Start registers the webhook when one is configured; updates then arrive
// through HandleUpdate. Without a webhook it long-polls until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	if b.webhookURL != "" {
		webhook, err := tgbotapi.NewWebhook(b.webhookURL)
		if err != nil {
			return err
		}
		if _, err := b.api.Request(webhook); err != nil {
			return err
		}

		info, err := b.api.GetWebhookInfo()
		if err != nil {
			return err
		}
		if info.LastErrorDate != 0 {
			b.log.Warn("Telegram webhook last error", logger.String("message", info.LastErrorMessage))
		}
		return nil
	}

	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return err
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()
	go func() {
		for update := range updates {
			b.HandleUpdate(ctx, update)
		}
	}()
	return nil
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := "telegram:" + strconv.FormatInt(update.Message.From.ID, 10)
	chatID := update.Message.Chat.ID
	command, args := parseCommand(update.Message.Text)

	switch command {
	case "/start":
		b.handleStart(chatID)
	case "/help":
		b.handleHelp(chatID)
	case "/city":
		b.handleCity(ctx, userID, chatID, args)
	case "/pulses":
		b.handlePulses(ctx, userID, chatID, args)
	case "/feed":
		b.handleFeed(ctx, userID, chatID)
	case "/save":
		b.handleSave(ctx, userID, chatID, args)
	case "/collections":
		b.handleCollections(ctx, userID, chatID)
	default:
		b.sendMessage(chatID, "Unknown command. Use /help for available commands.")
	}
}

// parseCommand splits "/city@CityPulseBot new delhi" into "/city" and the rest.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	command, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	return command, fields[1:]
}

func (b *Bot) handleStart(chatID int64) {
	b.sendMessage(chatID, fmt.Sprintf(`Welcome to CityPulse! 🏙️

I'll show you what's happening in your city.

1. Pick a city: /city %s
2. Pick your pulses: /pulses restaurants,tech-meetups
3. Read your feed: /feed

Cities: %s
Pulses: %s`,
		b.deps.Cities[0],
		strings.Join(b.deps.Cities, ", "),
		pulseList()))
}

func (b *Bot) handleHelp(chatID int64) {
	b.sendMessage(chatID, `CityPulse Help 📖

/city &lt;name&gt; - Set your city
/pulses &lt;id,...&gt; - Choose topics (empty for all)
/feed - Latest items for your city and pulses
/save &lt;item-id&gt; [collection] - Save an item
/collections - List your saved collections
/help - Show this help

Pulses: `+pulseList())
}

func (b *Bot) handleCity(ctx context.Context, userID string, chatID int64, args []string) {
	if len(args) == 0 {
		b.sendMessage(chatID, "Usage: /city <name>. Cities: "+strings.Join(b.deps.Cities, ", "))
		return
	}

	city, err := b.deps.Cities.Resolve(strings.Join(args, " "))
	if err != nil {
		b.sendMessage(chatID, "Sorry, I don't cover that city yet. Cities: "+strings.Join(b.deps.Cities, ", "))
		return
	}

	prefs, ok := b.preferences(ctx, userID, chatID)
	if !ok {
		return
	}
	if _, err := b.deps.Preferences.SavePreferences(ctx, userID, city, prefs.SelectedPulses); err != nil {
		b.fail(chatID, "save preferences", err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("City set to <b>%s</b> 📍", html.EscapeString(city)))
}

func (b *Bot) handlePulses(ctx context.Context, userID string, chatID int64, args []string) {
	pulses := feed.ParsePulses(args)
	if len(args) > 0 && len(pulses) == 0 {
		b.sendMessage(chatID, "No valid pulses given. Choose from: "+pulseList())
		return
	}

	prefs, ok := b.preferences(ctx, userID, chatID)
	if !ok {
		return
	}
	if _, err := b.deps.Preferences.SavePreferences(ctx, userID, prefs.City, pulses); err != nil {
		b.fail(chatID, "save preferences", err)
		return
	}

	if len(pulses) == 0 {
		b.sendMessage(chatID, "You'll see every pulse 🎯")
		return
	}
	names := make([]string, len(pulses))
	for i, p := range pulses {
		names[i] = p.DisplayName()
	}
	b.sendMessage(chatID, "Pulses set: "+html.EscapeString(strings.Join(names, ", "))+" 🎯")
}

func (b *Bot) handleFeed(ctx context.Context, userID string, chatID int64) {
	prefs, ok := b.preferences(ctx, userID, chatID)
	if !ok {
		return
	}
	if prefs.City == "" {
		b.sendMessage(chatID, "Set your city first with /city <name>.")
		return
	}

	pulses := make([]string, len(prefs.SelectedPulses))
	for i, p := range prefs.SelectedPulses {
		pulses[i] = string(p)
	}

	items, err := b.deps.Feed.Query(ctx, prefs.City, pulses, feedPageSize)
	if err != nil {
		b.fail(chatID, "query feed", err)
		return
	}
	if len(items) == 0 {
		b.sendMessage(chatID, "Nothing here yet. Check back after the next refresh.")
		return
	}
	for _, item := range items {
		b.sendMessage(chatID, formatItem(item))
	}
}

func (b *Bot) handleSave(ctx context.Context, userID string, chatID int64, args []string) {
	if len(args) == 0 {
		b.sendMessage(chatID, "Usage: /save <item-id> [collection]")
		return
	}

	itemID := args[0]
	if _, err := b.deps.Content.Get(ctx, itemID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			b.sendMessage(chatID, "I couldn't find that item.")
			return
		}
		b.fail(chatID, "look up item", err)
		return
	}

	c, err := b.deps.Collections.SaveToCollection(ctx, userID, itemID, strings.Join(args[1:], " "))
	if err != nil {
		b.fail(chatID, "save item", err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("Saved to <b>%s</b> (%d items) 🔖", html.EscapeString(c.Name), len(c.Items)))
}

func (b *Bot) handleCollections(ctx context.Context, userID string, chatID int64) {
	collections, err := b.deps.Collections.ListCollections(ctx, userID)
	if err != nil {
		b.fail(chatID, "list collections", err)
		return
	}
	if len(collections) == 0 {
		b.sendMessage(chatID, "No collections yet. Use /save <item-id> to start one.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your collections 📚\n")
	for _, c := range collections {
		sb.WriteString(fmt.Sprintf("\n• <b>%s</b> (%d items)", html.EscapeString(c.Name), len(c.Items)))
	}
	b.sendMessage(chatID, sb.String())
}

// preferences returns the stored preferences, or empty ones for a new user.
func (b *Bot) preferences(ctx context.Context, userID string, chatID int64) (models.PulsePreferences, bool) {
	prefs, err := b.deps.Preferences.GetPreferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.PulsePreferences{UserID: userID}, true
	}
	if err != nil {
		b.fail(chatID, "load preferences", err)
		return models.PulsePreferences{}, false
	}
	return prefs, true
}

func (b *Bot) fail(chatID int64, action string, err error) {
	b.log.Error("Telegram command failed", logger.String("action", action), logger.Error(err))
	b.sendMessage(chatID, "Something went wrong, please try again later.")
}

func formatItem(item feed.Item) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>%s</b>\n", html.EscapeString(item.Title)))
	sb.WriteString(fmt.Sprintf("📂 %s", html.EscapeString(item.Category.DisplayName())))
	if item.Location != "" {
		sb.WriteString(fmt.Sprintf(" · 📍 %s", html.EscapeString(item.Location)))
	}
	sb.WriteString("\n\n")
	sb.WriteString(html.EscapeString(item.Summary))
	if len(item.Highlights) > 0 {
		sb.WriteString("\n")
		for _, h := range item.Highlights {
			sb.WriteString("\n• " + html.EscapeString(h))
		}
	}
	if item.SourceURL != "" {
		sb.WriteString(fmt.Sprintf("\n\n🔗 <a href=\"%s\">%s</a>", html.EscapeString(item.SourceURL), html.EscapeString(item.CallToAction)))
	}
	sb.WriteString(fmt.Sprintf("\n🆔 <code>%s</code>", item.ID))
	return sb.String()
}

func pulseList() string {
	ids := make([]string, 0, len(models.AllCategories()))
	for _, c := range models.AllCategories() {
		ids = append(ids, string(c))
	}
	return strings.Join(ids, ", ")
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	if _, err := b.sender.Send(msg); err != nil {
		b.log.Error("Failed to send telegram message", logger.Error(err))
	}
}
