package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/events"
)

// ReconcileHandler recomputes a user's total XP from the session log when asked to.
type ReconcileHandler struct {
	reconciler domain.XPReconciler
	logger     *log.Logger
}

// NewReconcileHandler constructs a handler backed by reconciler.
func NewReconcileHandler(reconciler domain.XPReconciler, logger *log.Logger) *ReconcileHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[reconcile] ", log.LstdFlags)
	}
	return &ReconcileHandler{reconciler: reconciler, logger: logger}
}

// Handle decodes an xp.reconcile_requested payload and runs the reconciliation.
func (h *ReconcileHandler) Handle(ctx context.Context, msg Message) error {
	var req events.XPReconcileRequested
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return fmt.Errorf("decode reconcile request: %w", err)
	}
	if req.UserID == "" {
		req.UserID = msg.UserID
	}
	if req.UserID == "" {
		h.logger.Printf("dropping reconcile request without user (offset=%d)", msg.Offset)
		return nil
	}

	total, err := h.reconciler.ReconcileXP(ctx, req.UserID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		h.logger.Printf("no profile to reconcile (user=%s)", req.UserID)
		return nil
	}
	if err != nil {
		return err
	}
	recordReconciled()
	h.logger.Printf("reconciled xp (user=%s, reason=%q, total=%d)", req.UserID, req.Reason, total)
	return nil
}
