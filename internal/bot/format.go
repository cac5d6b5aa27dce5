package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ooredoo-bot/internal/conversation"
	"ooredoo-bot/internal/gift"
	"ooredoo-bot/internal/ooredoo"
)

const separator = "────────────────────"

// formatDashboard renders the structured dashboard into the Markdown message
// the bot sends.
func formatDashboard(d *conversation.DashboardData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📱 **الخطة:** %s\n", d.PlanType)
	b.WriteString(formatPackages(d))
	b.WriteString(separator + "\n")
	b.WriteString(giftLine(d.Gift))

	return b.String()
}

func formatPackages(d *conversation.DashboardData) string {
	if d.PackagesErr != nil {
		return "⚠️ فشل جلب الرصيد\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💰 **الرصيد:** `%s DA`\n", d.Packages.AccountBalance)
	b.WriteString(separator + "\n")

	if len(d.Packages.Bundles) == 0 {
		b.WriteString("🚫 لا توجد اشتراكات.\n")
		return b.String()
	}

	for _, bundle := range d.Packages.Bundles {
		name := bundle.AllocationName
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(&b, "%s **%s:** %s %s %s\n",
			bundleIcon(name), name, bundle.RemainingBalance, bundle.Unit, expiryNote(bundle.ExpireDate))
	}
	return b.String()
}

func bundleIcon(allocationName string) string {
	switch allocationName {
	case "DATA":
		return "🌐"
	case "YOUTUBE":
		return "📺"
	case "VOICE":
		return "📞"
	case "SMS":
		return "✉️"
	default:
		return "📦"
	}
}

// expiryNote renders the days left on a bundle, or nothing when the expiry
// is absent or unparsable.
func expiryNote(expireDate string) string {
	if expireDate == "" {
		return ""
	}
	exp, err := gift.ParsePlayedTime(expireDate)
	if err != nil {
		return ""
	}
	days := int(time.Until(exp).Hours() / 24)
	if days < 0 {
		return "(منتهي)"
	}
	return fmt.Sprintf("(%d يوم)", days)
}

func giftLine(g conversation.GiftInfo) string {
	switch {
	case g.Err != nil && errors.Is(g.Err, ooredoo.ErrTransport):
		return "❌ خطأ شبكة"
	case g.Err != nil:
		return "⚠️ خطأ في وقت الهدية"
	case g.Claimable:
		return "🎉 **الهدية متوفرة!**"
	default:
		hours := int(g.Remaining.Hours())
		minutes := int(g.Remaining.Minutes()) % 60
		return fmt.Sprintf("⏱️ **الهدية:** باقي %d ساعة و %d دقيقة", hours, minutes)
	}
}

// errorMessage maps a core error onto the user-facing retry message.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, ooredoo.ErrValidation):
		return "❌ تنسيق الرقم خطأ (05...)."
	case errors.Is(err, ooredoo.ErrSessionExpired):
		return "⚠️ انتهت الجلسة، أرسل /start لتسجيل الدخول من جديد."
	case errors.Is(err, ooredoo.ErrTransport):
		return "❌ خطأ اتصال:\n" + err.Error()
	default:
		return "❌ فشل:\n" + err.Error()
	}
}
