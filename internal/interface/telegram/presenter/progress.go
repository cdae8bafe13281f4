// Package presenter formats bot replies. Replies are plain text.
package presenter

import (
	"fmt"
	"strings"

	"github.com/alphawulf/alphawulf-hub/internal/application/query"
	"github.com/alphawulf/alphawulf-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATIC REPLIES
// ══════════════════════════════════════════════════════════════════════════════

const (
	WelcomeText = "Welcome to Alpha Wulf! 🐺\n\n" +
		"Use the Alpha Wulf Telegram Web App to start playing and earning rewards.\n\n" +
		"Available commands:\n" +
		"/progress - Check your progress\n" +
		"/achievements - View your achievements\n" +
		"/streak - Check your current streak\n" +
		"/help - Show this help message"

	HelpText = "Alpha Wulf Help 🐺\n\n" +
		"1. Open the Alpha Wulf Web App to start playing\n" +
		"2. Complete daily tasks to earn rewards\n" +
		"3. Level up to unlock new features\n" +
		"4. Invite friends to earn bonus rewards\n\n" +
		"Need more help? Contact our support team."

	AccountNotLinkedText = "Account not linked or found. Please use the Alpha Wulf Web App."

	ProgressUnavailableText     = "Could not retrieve progress data."
	AchievementsUnavailableText = "No achievements unlocked yet or data unavailable."
	StreakUnavailableText       = "Could not retrieve streak data."

	UnknownCommandText = "Unknown command. Send /help to see what I can do."
	RateLimitedText    = "Too many requests. Please slow down and try again in a moment."
	DefaultErrorText   = "Something went wrong. Please try again later."
)

const defaultAchievementIcon = "🏆"

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPLIES
// ══════════════════════════════════════════════════════════════════════════════

// FormatProgress renders the /progress reply.
func FormatProgress(p *query.ProgressDTO) string {
	return fmt.Sprintf("📊 Your Progress:\nLevel: %d\nExperience: %d/%d\nStreak: %d days\nAchievements: %d",
		p.Level, p.Experience, p.Threshold, p.Streak, len(p.Achievements))
}

// FormatAchievements renders the /achievements reply. ok is false when the
// record has nothing unlocked.
func FormatAchievements(p *query.ProgressDTO) (string, bool) {
	if len(p.Achievements) == 0 {
		return "", false
	}
	items := make([]string, 0, len(p.Achievements))
	for _, a := range p.Achievements {
		icon := a.Icon
		if icon == "" {
			icon = defaultAchievementIcon
		}
		items = append(items, fmt.Sprintf("%s %s\n%s", icon, a.Name, a.Description))
	}
	return "🏆 Your Achievements:\n\n" + strings.Join(items, "\n\n"), true
}

// FormatStreak renders the /streak reply.
func FormatStreak(p *query.ProgressDTO) string {
	return fmt.Sprintf("🔥 Your Streak:\nCurrent Streak: %d days\nLast Active: %s",
		p.Streak, timeutil.FormatDateStr(p.LastActiveAt))
}
