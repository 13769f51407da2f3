package cards

import (
	"context"
	"log/slog"

	"github.com/cleanclik/core/cleanclik/database/repositories"
)

// Rotator picks the template kind for unthemed requests by walking the
// persisted per-user rotation. Explicit template choices never touch it.
type Rotator struct {
	store  repositories.RotationRepository
	logger *slog.Logger
}

func NewRotator(store repositories.RotationRepository) *Rotator {
	if store == nil {
		panic("rotation store cannot be nil")
	}
	return &Rotator{
		store:  store,
		logger: slog.With(slog.String("service", "template_rotation")),
	}
}

// Next returns the kind the user's rotation currently points at. The counter
// only moves on Commit, so a generation that fails outright repeats the same
// template instead of burning a slot. Falls back to the start of the cycle
// when the counter is unavailable, so a storage hiccup degrades to repetition
// instead of failure.
func (r *Rotator) Next(ctx context.Context, userID string) TemplateKind {
	index, err := r.store.Peek(ctx, userID, RotationCycle)
	if err != nil {
		r.logger.Warn("Template rotation unavailable, using cycle start",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return rotationOrder[0]
	}
	return KindAt(index)
}

// Commit advances the user's counter one position after a card was generated
// or durably queued.
func (r *Rotator) Commit(ctx context.Context, userID string) {
	if _, err := r.store.Advance(ctx, userID, RotationCycle); err != nil {
		r.logger.Warn("Failed to advance template rotation",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}
}
