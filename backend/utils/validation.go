package utils

import (
	"fmt"
	"strings"

	"github.com/cleanclik/core/backend/models"
	"github.com/cleanclik/core/cleanclik/cards"
	"github.com/cleanclik/core/cleanclik/leaderboard"
)

// ValidateCardRequest validates a card creation payload before it reaches
// the generation queue. An empty template means the rotation picks one.
func ValidateCardRequest(req *models.CardRequestPayload) map[string]string {
	details := make(map[string]string)

	if !cards.ValidKind(req.Template) {
		details["template"] = fmt.Sprintf("unknown template %q", req.Template)
	}

	if req.Platform == "" {
		details["platform"] = "platform is required"
	} else if !cards.ValidPlatform(req.Platform) {
		details["platform"] = fmt.Sprintf("unknown platform %q", req.Platform)
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

// ValidatePeriod checks a leaderboard period query value
func ValidatePeriod(raw string) error {
	if !leaderboard.ValidPeriod(strings.TrimSpace(raw)) {
		return fmt.Errorf("unknown leaderboard period %q", raw)
	}
	return nil
}
