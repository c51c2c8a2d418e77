package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/logger"
	"github.com/oshokin/silent-alarm/internal/rpc/storev1"
	storage "github.com/oshokin/silent-alarm/internal/store"
)

// Headers identifying the writer of a trigger.
const (
	ActorHostnameHeader = "X-Actor-Hostname"
	ActorUsernameHeader = "X-Actor-Username"
)

// Handler serves the store routes.
type Handler struct {
	// ctx carries the service logger.
	ctx context.Context //nolint:containedctx // Logger scope only, never used for cancellation.
	// service provides the store operations.
	service Service
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler creates a handler over the provided store.
func NewHandler(ctx context.Context, service Service) *Handler {
	return &Handler{
		ctx:     ctx,
		service: service,
	}
}

// ListAlarms returns every device that has alarms.
func (h *Handler) ListAlarms(c *gin.Context) {
	devices, err := h.service.AllAlarms(c.Request.Context())
	if err != nil {
		h.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, storev1.ListAlarmsResponse{Devices: devices})
}

// GetAlarms returns the alarms of one device.
func (h *Handler) GetAlarms(c *gin.Context) {
	deviceID := c.Param("device")

	alarms, err := h.service.Alarms(c.Request.Context(), deviceID)
	if err != nil {
		h.fail(c, err)

		return
	}

	if alarms == nil {
		alarms = alarm.List{}
	}

	c.JSON(http.StatusOK, storev1.AlarmsResponse{DeviceID: deviceID, Alarms: alarms})
}

// PutAlarms replaces the alarms of one device with the JSON array in the body.
func (h *Handler) PutAlarms(c *gin.Context) {
	var alarms alarm.List
	if err := c.ShouldBindJSON(&alarms); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "body must be a JSON array of {date, time}"})

		return
	}

	if err := h.service.SetAlarms(c.Request.Context(), c.Param("device"), alarms); err != nil {
		h.fail(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteAlarms removes every alarm of one device.
func (h *Handler) DeleteAlarms(c *gin.Context) {
	if err := h.service.SetAlarms(c.Request.Context(), c.Param("device"), nil); err != nil {
		h.fail(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}

// ListTriggers returns every stored trigger value.
func (h *Handler) ListTriggers(c *gin.Context) {
	triggers, err := h.service.Triggers(c.Request.Context())
	if err != nil {
		h.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, storev1.ListTriggersResponse{Triggers: triggers})
}

// GetTrigger returns the trigger of one device with its write metadata.
func (h *Handler) GetTrigger(c *gin.Context) {
	deviceID := c.Param("device")

	state, err := h.service.TriggerState(c.Request.Context(), deviceID)
	if err != nil {
		h.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, storev1.TriggerResponse{
		DeviceID:  deviceID,
		Value:     state.Value,
		UpdatedAt: state.UpdatedAt,
		LastActor: storev1.FromDomainActor(state.LastActor),
	})
}

// PutTrigger writes the trigger of one device. The body is a bare JSON boolean.
func (h *Handler) PutTrigger(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "unable to read body"})

		return
	}

	value, err := strconv.ParseBool(strings.TrimSpace(string(body)))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "body must be true or false"})

		return
	}

	var actor *alarm.Actor

	hostname := c.GetHeader(ActorHostnameHeader)
	username := c.GetHeader(ActorUsernameHeader)

	if hostname != "" || username != "" {
		actor = &alarm.Actor{Hostname: hostname, Username: username}
	}

	if err = h.service.SetTrigger(c.Request.Context(), c.Param("device"), value, actor); err != nil {
		h.fail(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}

// fail maps a store error to an HTTP status and a JSON body.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidDeviceID), errors.Is(err, alarm.ErrInvalidAlarm):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		logger.ErrorKV(h.ctx, "Store request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "unable to access store"})
	}
}
