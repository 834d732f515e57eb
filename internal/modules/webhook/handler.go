package webhook

import (
	"errors"

	"github.com/andorinha-digital/core/internal/pkg/pagination"
	"github.com/andorinha-digital/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes mounts the admin webhook API. Every route requires an
// authenticated admin; non-admin callers are rejected before any subscription
// or log data is touched.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/webhooks", authMW, adminMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/events", h.listEventKinds)
	g.GET("/logs", h.listLogs)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/test", h.test)
	g.POST("/:id/rotate-secret", h.rotateSecret)
}

func (h *Handler) list(c *gin.Context) {
	items, counts, err := h.svc.List()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]subscriptionResponse, len(items))
	for i, sub := range items {
		out[i] = toResponse(&sub, counts[sub.ID])
	}
	response.OK(c, out)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateSubscriptionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sub, secret, err := h.svc.Create(&dto)
	if err != nil {
		if errors.Is(err, ErrInvalidURL) {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, createdResponse{
		subscriptionResponse: toResponse(sub, 0),
		Secret:               secret,
	})
}

func (h *Handler) get(c *gin.Context) {
	sub, err := h.svc.GetByID(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if sub == nil {
		response.NotFound(c)
		return
	}
	count, err := h.svc.DeliveryCount(sub.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, toResponse(sub, count))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateSubscriptionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sub, err := h.svc.Update(c.Param("id"), &dto)
	if err != nil {
		if errors.Is(err, ErrInvalidURL) {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	if sub == nil {
		response.NotFound(c)
		return
	}
	sub, err = h.svc.GetByID(sub.ID)
	if err != nil || sub == nil {
		response.InternalError(c, err)
		return
	}
	count, err := h.svc.DeliveryCount(sub.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, toResponse(sub, count))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listEventKinds(c *gin.Context) {
	response.OK(c, eventEnum)
}

func (h *Handler) listLogs(c *gin.Context) {
	q := pagination.FromContext(c)
	var subID *string
	if id := c.Query("subscriptionId"); id != "" {
		subID = &id
	}
	items, pag, err := h.svc.ListDeliveries(q, subID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) test(c *gin.Context) {
	out, err := h.svc.TestDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{
		"success":     out.Succeeded(),
		"status_code": out.StatusCode,
		"response":    out.Response,
		"error":       out.Error,
	})
}

func (h *Handler) rotateSecret(c *gin.Context) {
	secret, err := h.svc.RotateSecret(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"secret": secret})
}
