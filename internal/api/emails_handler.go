package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/daishi-37/yahei-fax-ocr/internal/scheduler"
	"github.com/rs/zerolog"
)

const (
	defaultLatestLimit = 10
	maxLatestLimit     = 100
)

// Trigger is the part of the scheduler the handlers use.
type Trigger interface {
	Status() scheduler.Status
	TriggerNow(ctx context.Context) (*models.CycleResult, error)
}

// MessageLister lists stored message files.
type MessageLister interface {
	LatestMessages(limit int) ([]models.StoredMessage, error)
}

// EmailsHandler serves the sync status and manual trigger endpoints.
type EmailsHandler struct {
	trigger  Trigger
	messages MessageLister
	logger   zerolog.Logger
}

// NewEmailsHandler creates a new EmailsHandler instance.
func NewEmailsHandler(trigger Trigger, messages MessageLister, logger zerolog.Logger) *EmailsHandler {
	return &EmailsHandler{
		trigger:  trigger,
		messages: messages,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

type latestResponse struct {
	Messages []models.StoredMessage `json:"messages"`
	Count    int                    `json:"count"`
}

// GetStatus returns the scheduler state and the last cycle result.
func (h *EmailsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.trigger.Status(), h.logger)
}

// Poll runs a sync cycle and returns its result.
// The cycle keeps running if the client goes away.
func (h *EmailsHandler) Poll(w http.ResponseWriter, r *http.Request) {
	result, err := h.trigger.TriggerNow(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleInProgress) {
			writeError(w, http.StatusConflict, "a sync cycle is already running", h.logger)
			return
		}
		if errors.Is(err, scheduler.ErrStopped) {
			writeError(w, http.StatusServiceUnavailable, "server is shutting down", h.logger)
			return
		}
		h.logger.Error().Err(err).Msg("Manual poll failed")
		writeError(w, http.StatusInternalServerError, "internal server error", h.logger)
		return
	}

	status := http.StatusOK
	if result.Status == models.CycleFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result, h.logger)
}

// GetLatest returns the newest stored message files.
func (h *EmailsHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	limit := ParseLimitParam(r, defaultLatestLimit, maxLatestLimit)

	messages, err := h.messages.LatestMessages(limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list stored messages")
		writeError(w, http.StatusInternalServerError, "internal server error", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, latestResponse{Messages: messages, Count: len(messages)}, h.logger)
}
