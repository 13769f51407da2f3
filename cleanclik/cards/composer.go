package cards

import (
	"encoding/base64"
	"fmt"

	"github.com/cleanclik/core/cleanclik/database/models"
	qrcode "github.com/skip2/go-qrcode"
)

// CardContent is the assembled text/payload bundle a template renders. Every
// card carries points/level, one achievement-or-streak fact, one impact
// metric, a motivational message, and a call-to-action.
type CardContent struct {
	Headline     string
	PointsLine   string
	Fact         string
	Impact       string
	Message      string
	CallToAction string
	QRBase64     string
}

const genericFact = "Every piece of waste sorted keeps our streets cleaner"

// Motivational pools keyed by milestone proximity.
var (
	messagesClose = []string{
		"You're only %d points from level %d — one cleanup away!",
		"So close: %d points to level %d. Finish the climb!",
	}
	messagesMid = []string{
		"Level %[2]d is in sight — %[1]d points to go. Keep sorting!",
		"%[1]d points until level %[2]d. The planet is cheering.",
	}
	messagesTop = []string{
		"Top of the ladder. Keep the streak alive!",
		"Max level reached — you're carrying the whole neighborhood.",
	}
)

const proximityThreshold = 100

// ComposeContent builds the card content from a frozen snapshot. Missing
// pieces fall back to a generic environmental message rather than leaving a
// blank region.
func ComposeContent(snap models.StatsSnapshot, kind TemplateKind, appLink string) (CardContent, error) {
	qr, err := qrcode.Encode(appLink, qrcode.Medium, 160)
	if err != nil {
		return CardContent{}, fmt.Errorf("failed to encode call-to-action QR: %w", err)
	}

	content := CardContent{
		Headline:     headline(snap, kind),
		PointsLine:   fmt.Sprintf("%d points · Level %d", snap.Points, snap.Level),
		Fact:         fact(snap),
		Impact:       impact(snap, kind),
		Message:      message(snap),
		CallToAction: "Join the cleanup on CleanClik",
		QRBase64:     base64.StdEncoding.EncodeToString(qr),
	}
	return content, nil
}

func headline(snap models.StatsSnapshot, kind TemplateKind) string {
	switch kind {
	case TemplateImpact:
		return fmt.Sprintf("%s is cleaning up the planet", snap.DisplayName)
	case TemplateProgress:
		return fmt.Sprintf("%s leveled up the streets", snap.DisplayName)
	default:
		if snap.RecentAchievement != "" {
			return fmt.Sprintf("%s unlocked %q", snap.DisplayName, snap.RecentAchievement)
		}
		return fmt.Sprintf("%s is on a roll", snap.DisplayName)
	}
}

func fact(snap models.StatsSnapshot) string {
	if snap.RecentAchievement != "" {
		return fmt.Sprintf("Latest achievement: %s", snap.RecentAchievement)
	}
	if snap.StreakDays > 0 {
		return fmt.Sprintf("%d-day cleanup streak", snap.StreakDays)
	}
	if snap.WeeklyPoints > 0 {
		return fmt.Sprintf("%d points earned this week", snap.WeeklyPoints)
	}
	return genericFact
}

func impact(snap models.StatsSnapshot, kind TemplateKind) string {
	if kind != TemplateImpact && snap.ItemsCollected > 0 {
		return fmt.Sprintf("%d items sorted into the right bin", snap.ItemsCollected)
	}
	if snap.CO2SavedGrams > 0 {
		return fmt.Sprintf("%.1f kg CO2 avoided", float64(snap.CO2SavedGrams)/1000)
	}
	if snap.ItemsCollected > 0 {
		return fmt.Sprintf("%d items sorted into the right bin", snap.ItemsCollected)
	}
	return genericFact
}

func message(snap models.StatsSnapshot) string {
	next := models.NextLevelThreshold(snap.Points)
	if next < 0 {
		return messagesTop[int(snap.Points)%len(messagesTop)]
	}

	remaining := next - snap.Points
	nextLevel := models.LevelForPoints(next)
	if remaining <= proximityThreshold {
		pick := messagesClose[int(snap.Points)%len(messagesClose)]
		return fmt.Sprintf(pick, remaining, nextLevel)
	}
	pick := messagesMid[int(snap.Points)%len(messagesMid)]
	return fmt.Sprintf(pick, remaining, nextLevel)
}
