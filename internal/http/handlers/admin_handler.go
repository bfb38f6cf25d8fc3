// README: Admin handlers; status overrides, manual rider assignment, realtime stats, broadcasts.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deliverd/internal/http/middleware"
	"deliverd/internal/modules/dispatch"
	"deliverd/internal/modules/order"
	"deliverd/internal/modules/registry"
	"deliverd/internal/types"
)

type AdminHandler struct {
	dispatcher *dispatch.Service
	reg        *registry.Registry
}

func NewAdminHandler(dispatcher *dispatch.Service, reg *registry.Registry) *AdminHandler {
	return &AdminHandler{dispatcher: dispatcher, reg: reg}
}

func (h *AdminHandler) requireAdmin(c *gin.Context) (types.ID, bool) {
	if middleware.CallerRole(c) != string(registry.RoleAdmin) {
		writeError(c, http.StatusForbidden, "admin role required")
		return "", false
	}
	return types.ID(middleware.CallerUID(c)), true
}

type statusOverrideReq struct {
	Status  order.Status `json:"status"`
	Message string       `json:"message"`
}

// UpdateStatus applies an admin-initiated override via the same dispatch
// path as every other actor; the state machine still arbitrates.
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	adminID, ok := h.requireAdmin(c)
	if !ok {
		return
	}
	orderID := types.ID(c.Param("id"))
	var req statusOverrideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	ev, ok := dispatch.EventForStatusOverride(req.Status)
	if !ok {
		writeError(c, http.StatusBadRequest, "unsupported status override: "+string(req.Status))
		return
	}

	actor := dispatch.Actor{ID: adminID, Role: registry.RoleAdmin}
	tr, err := h.dispatcher.Dispatch(c.Request.Context(), orderID, ev,
		order.EventPayload{Reason: req.Message}, actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"order_id": tr.Order.ID, "status": tr.To})
}

type assignRiderReq struct {
	RiderID types.ID `json:"rider_id"`
}

// AssignRider lets an admin hand an order to a specific rider; it goes
// through the same guarded assignment as rider self-accept.
func (h *AdminHandler) AssignRider(c *gin.Context) {
	adminID, ok := h.requireAdmin(c)
	if !ok {
		return
	}
	orderID := types.ID(c.Param("id"))
	var req assignRiderReq
	if err := c.ShouldBindJSON(&req); err != nil || req.RiderID == "" {
		writeError(c, http.StatusBadRequest, "missing rider_id")
		return
	}

	actor := dispatch.Actor{ID: adminID, Role: registry.RoleAdmin}
	tr, err := h.dispatcher.Dispatch(c.Request.Context(), orderID, order.EventRiderAssigned,
		order.EventPayload{RiderID: req.RiderID}, actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"order_id": tr.Order.ID,
		"status":   tr.To,
		"rider_id": req.RiderID,
	})
}

// RealtimeStats exposes connected-session counts for the admin dashboard.
func (h *AdminHandler) RealtimeStats(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}
	writeJSON(c, http.StatusOK, h.reg.Counts())
}

type notificationReq struct {
	Message   string `json:"message"`
	Level     string `json:"level"`
	Emergency bool   `json:"emergency"`
}

// Broadcast pushes a system or emergency notification to every connected
// session.
func (h *AdminHandler) Broadcast(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}
	var req notificationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		writeError(c, http.StatusBadRequest, "missing message")
		return
	}
	if req.Emergency {
		h.dispatcher.Emergency(c.Request.Context(), req.Message)
	} else {
		h.dispatcher.Notify(c.Request.Context(), req.Message, req.Level)
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": "sent"})
}
