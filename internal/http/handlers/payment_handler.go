// README: Payment gateway callback handler; translates gateway results into lifecycle events.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deliverd/internal/modules/dispatch"
	"deliverd/internal/modules/order"
	"deliverd/internal/modules/registry"
	"deliverd/internal/types"
)

type PaymentHandler struct {
	dispatcher *dispatch.Service
}

func NewPaymentHandler(dispatcher *dispatch.Service) *PaymentHandler {
	return &PaymentHandler{dispatcher: dispatcher}
}

type paymentCallbackReq struct {
	OrderID  types.ID `json:"order_id"`
	Success  bool     `json:"success"`
	Amount   int64    `json:"amount"`
	Currency string   `json:"currency"`
	Receipt  string   `json:"receipt"`
	Reason   string   `json:"reason"`
}

// Callback is invoked by the payment collaborator (M-Pesa/cards adapter)
// once it has settled a charge. Gateways retry callbacks, so a duplicate
// lands on an already-confirmed order and is rejected by the machine without
// re-broadcasting.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req paymentCallbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrderID == "" {
		writeError(c, http.StatusBadRequest, "missing order_id")
		return
	}

	actor := dispatch.Actor{Role: registry.RoleSystem}
	event := order.EventPaymentConfirmed
	payload := order.EventPayload{
		Amount:  &types.Money{Amount: req.Amount, Currency: req.Currency},
		Receipt: req.Receipt,
	}
	if !req.Success {
		event = order.EventPaymentFailed
		payload = order.EventPayload{Reason: req.Reason}
	}

	tr, err := h.dispatcher.Dispatch(c.Request.Context(), req.OrderID, event, payload, actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"order_id":       tr.Order.ID,
		"status":         tr.To,
		"payment_status": tr.Order.PaymentStatus,
	})
}
