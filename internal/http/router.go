// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deliverd/internal/http/handlers"
	"deliverd/internal/http/middleware"
	"deliverd/internal/ws"
)

type RouterDeps struct {
	Orders   *handlers.OrderHandler
	Payments *handlers.PaymentHandler
	Riders   *handlers.RiderHandler
	Admin    *handlers.AdminHandler
	Hub      *ws.Hub
}

func NewRouter(deps RouterDeps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Identity())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	r.GET("/ws", func(c *gin.Context) {
		deps.Hub.Handle(c.Writer, c.Request)
	})

	api := r.Group("/api")
	{
		api.POST("/orders", deps.Orders.Create)
		api.GET("/orders/:id", deps.Orders.Get)
		api.POST("/orders/:id/cancel", deps.Orders.Cancel)

		api.POST("/payments/callback", deps.Payments.Callback)

		api.POST("/rider/accept-order", deps.Riders.Accept)
		api.PUT("/rider/location", deps.Riders.Location)

		admin := api.Group("/admin")
		{
			admin.PATCH("/orders/:id/status", deps.Admin.UpdateStatus)
			admin.POST("/orders/:id/assign-rider", deps.Admin.AssignRider)
			admin.GET("/realtime/stats", deps.Admin.RealtimeStats)
			admin.POST("/notifications", deps.Admin.Broadcast)
		}
	}

	return r
}
