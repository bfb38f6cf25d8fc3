// README: Order handlers for placement and the reconnect-reconciliation read.
package handlers

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"deliverd/internal/http/middleware"
	"deliverd/internal/modules/dispatch"
	"deliverd/internal/modules/order"
	"deliverd/internal/modules/registry"
	"deliverd/internal/types"
)

type OrderHandler struct {
	dispatcher    *dispatch.Service
	store         order.Store
	minimumAmount int64
}

func NewOrderHandler(dispatcher *dispatch.Service, store order.Store, minimumAmount int64) *OrderHandler {
	return &OrderHandler{dispatcher: dispatcher, store: store, minimumAmount: minimumAmount}
}

type guestInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type createOrderReq struct {
	Items     []order.Item  `json:"items"`
	Address   order.Address `json:"delivery_address"`
	Total     int64         `json:"total_amount"`
	Currency  string        `json:"currency"`
	GuestInfo *guestInfo    `json:"guest_info,omitempty"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Currency == "" {
		req.Currency = "KES"
	}

	customerID := types.ID(middleware.CallerUID(c))
	guest := false
	if customerID == "" {
		// Guest checkout: contact details stand in for an account.
		if req.GuestInfo == nil || req.GuestInfo.Name == "" || req.GuestInfo.Email == "" || req.GuestInfo.Phone == "" {
			writeError(c, http.StatusBadRequest, "guest information (name, email, phone) is required for guest checkout")
			return
		}
		customerID = newGuestID()
		guest = true
	}

	o, err := h.dispatcher.PlaceOrder(c.Request.Context(), dispatch.PlaceOrderCommand{
		CustomerID: customerID,
		Guest:      guest,
		Items:      req.Items,
		Address:    req.Address,
		Total:      types.Money{Amount: req.Total, Currency: req.Currency},
	}, h.minimumAmount)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, orderView(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	o, err := h.store.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderView(o))
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	actor := dispatch.Actor{ID: types.ID(middleware.CallerUID(c)), Role: registry.RoleCustomer}
	tr, err := h.dispatcher.Dispatch(c.Request.Context(), types.ID(id), order.EventCancel,
		order.EventPayload{Reason: "customer cancel"}, actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderView(tr.Order))
}

func orderView(o *order.Order) map[string]any {
	return map[string]any{
		"order_id":       o.ID,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
		"rider_id":       o.RiderID,
		"total":          o.Total,
		"items":          o.Items,
		"address":        o.Address,
		"created_at":     o.CreatedAt,
		"updated_at":     o.UpdatedAt,
	}
}

func newGuestID() types.ID {
	return types.ID(fmt.Sprintf("guest_%d_%06d", time.Now().UnixMilli(), rand.Intn(1000000)))
}
