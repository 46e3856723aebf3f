package leaderboard

import (
	"context"
	"log"

	"example.com/focusquest/internal/consumer"
)

// Invalidator drops cached rankings.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ReloadHandler refreshes the board on every profile change notification, without
// checking whether the changed profile is inside the window.
type ReloadHandler struct {
	board  *Board
	cache  Invalidator
	logger *log.Logger
}

var _ consumer.Handler = (*ReloadHandler)(nil)

// NewReloadHandler builds a handler for board. cache may be nil.
func NewReloadHandler(board *Board, cache Invalidator, logger *log.Logger) *ReloadHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[leaderboard] ", log.LstdFlags)
	}
	return &ReloadHandler{board: board, cache: cache, logger: logger}
}

// Handle invalidates the cache and reloads the board.
func (h *ReloadHandler) Handle(ctx context.Context, msg consumer.Message) error {
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			h.logger.Printf("cache invalidation failed (user=%s): %v", msg.UserID, err)
		}
	}
	return h.board.Reload(ctx)
}
