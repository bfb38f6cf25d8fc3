// README: Rider handlers; accepting an order is the race the conditional write settles.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deliverd/internal/http/middleware"
	"deliverd/internal/modules/dispatch"
	"deliverd/internal/modules/order"
	"deliverd/internal/modules/presence"
	"deliverd/internal/modules/registry"
	"deliverd/internal/types"
)

type RiderHandler struct {
	dispatcher *dispatch.Service
	presence   *presence.Service
}

func NewRiderHandler(dispatcher *dispatch.Service, presenceSvc *presence.Service) *RiderHandler {
	return &RiderHandler{dispatcher: dispatcher, presence: presenceSvc}
}

type acceptOrderReq struct {
	OrderID types.ID `json:"order_id"`
}

// Accept claims a ready order for the calling rider. When two riders race,
// the conditional write lets exactly one through; the other gets an explicit
// 409 "order no longer available".
func (h *RiderHandler) Accept(c *gin.Context) {
	if middleware.CallerRole(c) != string(registry.RoleRider) {
		writeError(c, http.StatusForbidden, "rider role required")
		return
	}
	riderID := types.ID(middleware.CallerUID(c))
	if riderID == "" {
		writeError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var req acceptOrderReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" {
		writeError(c, http.StatusBadRequest, "missing order_id")
		return
	}

	actor := dispatch.Actor{ID: riderID, Role: registry.RoleRider}
	tr, err := h.dispatcher.Dispatch(c.Request.Context(), req.OrderID, order.EventRiderAssigned,
		order.EventPayload{RiderID: riderID}, actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"order_id": tr.Order.ID,
		"status":   tr.To,
		"rider_id": riderID,
	})
}

// Location is the HTTP fallback for rider GPS pings (the websocket path is
// preferred by the rider app).
func (h *RiderHandler) Location(c *gin.Context) {
	if middleware.CallerRole(c) != string(registry.RoleRider) {
		writeError(c, http.StatusForbidden, "rider role required")
		return
	}
	riderID := types.ID(middleware.CallerUID(c))
	if riderID == "" {
		writeError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		Location types.Point `json:"location"`
		Accuracy float64     `json:"accuracy"`
		OrderID  types.ID    `json:"order_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.presence.Report(c.Request.Context(), presence.Ping{
		RiderID:  riderID,
		OrderID:  req.OrderID,
		Position: req.Location,
		Accuracy: req.Accuracy,
	}); err != nil {
		writeError(c, http.StatusInternalServerError, "failed to record location")
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": "ok"})
}
