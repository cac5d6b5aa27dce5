package bot

import (
	"context"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ooredoo-bot/internal/conversation"
	"ooredoo-bot/internal/metrics"
	"ooredoo-bot/internal/worker"
)

const (
	callbackClaimGift     = "claim_gift"
	callbackRefreshDash   = "refresh_dash"
	callbackCheckSnapchat = "check_snapchat"
)

// Service is the Telegram front-end: it receives updates, hands each one to
// the worker pool and turns the machine's structured results into messages.
type Service struct {
	bot     *tgbotapi.BotAPI
	machine *conversation.Machine
	pool    *worker.Pool
	logger  *log.Logger
}

// NewService creates a new Telegram Service.
func NewService(botToken string, machine *conversation.Machine, pool *worker.Pool, logger *log.Logger) (*Service, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}

	logger.Printf("Authorized on account %s", bot.Self.UserName)

	return &Service{
		bot:     bot,
		machine: machine,
		pool:    pool,
		logger:  logger,
	}, nil
}

// StartPolling starts a long-polling loop to receive updates from Telegram.
// It blocks until the context is cancelled; run it in a goroutine.
func (s *Service) StartPolling(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := s.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			s.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.dispatch(update)
		}
	}
}

// dispatch submits one update to the worker pool. Per-user ordering is
// enforced by the conversation registry, not here.
func (s *Service) dispatch(update tgbotapi.Update) {
	ok := s.pool.Submit(worker.TaskFunc(func(ctx context.Context) error {
		s.handleUpdate(ctx, update)
		return nil
	}))
	if !ok {
		s.logger.Printf("update queue full, dropping update %d", update.UpdateID)
	}
}

func (s *Service) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		metrics.UpdatesProcessed.WithLabelValues("callback").Inc()
		s.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		metrics.UpdatesProcessed.WithLabelValues("command").Inc()
		s.handleCommand(ctx, update.Message)
	case update.Message != nil:
		metrics.UpdatesProcessed.WithLabelValues("message").Inc()
		s.handleText(ctx, update.Message)
	}
}

func (s *Service) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	if message.Command() != "start" {
		return
	}
	chatID := message.Chat.ID

	result, err := s.machine.Start(ctx, chatID)
	if err != nil {
		s.send(chatID, errorMessage(err))
		return
	}

	if result.Authenticated {
		s.send(chatID, "👋 مرحبًا بك مجددًا!")
		s.sendDashboard(chatID, result.Dashboard)
		return
	}
	s.send(chatID, "📞 رقم الهاتف:")
}

func (s *Service) handleText(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	result, err := s.machine.HandleText(ctx, chatID, message.Text)
	if err != nil {
		s.send(chatID, errorMessage(err))
		return
	}

	switch result.Outcome {
	case conversation.OutcomeOTPSent:
		s.send(chatID, "✅ تم إرسال الرمز! أدخل OTP:")
	case conversation.OutcomeLoggedIn:
		s.sendMarkdown(chatID, "✅ **تم تسجيل الدخول!**")
		if result.Dashboard != nil {
			s.sendDashboard(chatID, result.Dashboard)
		}
	}
}

func (s *Service) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	chatID := query.Message.Chat.ID

	switch query.Data {
	case callbackClaimGift:
		s.answer(query.ID, "")
		s.claimGift(ctx, chatID, query.Message.MessageID)
	case callbackRefreshDash:
		s.answer(query.ID, "جاري التحديث...")
		s.refreshDashboard(ctx, chatID, query.Message.MessageID)
	case callbackCheckSnapchat:
		s.answer(query.ID, "")
		s.send(chatID, "👻 التحقق من سناب شات (قيد التنفيذ)...")
	}
}

func (s *Service) claimGift(ctx context.Context, chatID int64, messageID int) {
	s.edit(chatID, messageID, "⏳ جاري فتح الهدية...")

	result, err := s.machine.ClaimGift(ctx, chatID)
	if err != nil {
		s.send(chatID, errorMessage(err))
		return
	}

	giftName := result.GiftName
	if giftName == "" {
		giftName = "هدية"
	}
	validity := result.ValidityHour
	if validity == "" {
		validity = "?"
	}
	s.sendMarkdown(chatID, "🎉 **مبروك! حصلت على:**\n\n🎁 "+giftName+"\n⏳ الصلاحية: "+validity+" ساعة")

	dash, err := s.machine.Dashboard(ctx, chatID, false)
	if err != nil {
		s.logger.Printf("dashboard after claim for %d: %v", chatID, err)
		return
	}
	s.sendDashboard(chatID, dash)
}

func (s *Service) refreshDashboard(ctx context.Context, chatID int64, messageID int) {
	dash, err := s.machine.Dashboard(ctx, chatID, true)
	if err != nil {
		s.send(chatID, errorMessage(err))
		return
	}

	msg := tgbotapi.NewEditMessageText(chatID, messageID, formatDashboard(dash))
	msg.ParseMode = tgbotapi.ModeMarkdown
	markup := dashboardKeyboard(dash)
	msg.ReplyMarkup = &markup
	if _, err := s.bot.Send(msg); err != nil {
		// Telegram rejects edits when nothing changed; not worth surfacing.
		s.logger.Printf("editing dashboard for %d: %v", chatID, err)
	}
}

func (s *Service) sendDashboard(chatID int64, dash *conversation.DashboardData) {
	msg := tgbotapi.NewMessage(chatID, formatDashboard(dash))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = dashboardKeyboard(dash)
	if _, err := s.bot.Send(msg); err != nil {
		s.logger.Printf("sending dashboard to %d: %v", chatID, err)
	}
}

func dashboardKeyboard(dash *conversation.DashboardData) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if dash.Gift.Claimable {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎁 أحصل على الهدية الآن", callbackClaimGift)))
	}
	if strings.EqualFold(dash.PlanType, "YOOZ") {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👻 التحقق من سناب شات", callbackCheckSnapchat)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 تحديث", callbackRefreshDash)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (s *Service) send(chatID int64, text string) {
	if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		s.logger.Printf("sending message to %d: %v", chatID, err)
	}
}

func (s *Service) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.bot.Send(msg); err != nil {
		s.logger.Printf("sending message to %d: %v", chatID, err)
	}
}

func (s *Service) edit(chatID int64, messageID int, text string) {
	if _, err := s.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		s.logger.Printf("editing message %d for %d: %v", messageID, chatID, err)
	}
}

func (s *Service) answer(queryID, text string) {
	if _, err := s.bot.Request(tgbotapi.NewCallback(queryID, text)); err != nil {
		s.logger.Printf("answering callback: %v", err)
	}
}
