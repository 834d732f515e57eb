package offering

import (
	"errors"
	"time"

	"github.com/andorinha-digital/core/internal/models"
	"github.com/andorinha-digital/core/internal/modules/webhook"
	"github.com/andorinha-digital/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var errSlugTaken = errors.New("slug already exists")

type CreateOfferingDTO struct {
	Title       string `json:"title" binding:"required"`
	Slug        string `json:"slug"  binding:"required"`
	Description string `json:"description"`
}

type UpdateOfferingDTO struct {
	Title       *string `json:"title"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
}

type offeringResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}

func toResponse(o *models.OfferingModel) offeringResponse {
	return offeringResponse{
		ID: o.ID, Title: o.Title, Slug: o.Slug, Description: o.Description,
		Created: o.CreatedAt, Modified: o.UpdatedAt,
	}
}

type Service struct {
	db    *gorm.DB
	hooks *webhook.Service
}

func NewService(db *gorm.DB, hooks *webhook.Service) *Service {
	return &Service{db: db, hooks: hooks}
}

func (s *Service) List() ([]models.OfferingModel, error) {
	var items []models.OfferingModel
	return items, s.db.Order("created_at DESC").Find(&items).Error
}

func (s *Service) GetByID(id string) (*models.OfferingModel, error) {
	var o models.OfferingModel
	if err := s.db.First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (s *Service) Create(dto *CreateOfferingDTO) (*models.OfferingModel, error) {
	var count int64
	s.db.Model(&models.OfferingModel{}).Where("slug = ?", dto.Slug).Count(&count)
	if count > 0 {
		return nil, errSlugTaken
	}
	o := models.OfferingModel{Title: dto.Title, Slug: dto.Slug, Description: dto.Description}
	if err := s.db.Create(&o).Error; err != nil {
		return nil, err
	}
	s.hooks.DispatchServiceCreated(&o)
	return &o, nil
}

func (s *Service) Update(id string, dto *UpdateOfferingDTO) (*models.OfferingModel, error) {
	o, err := s.GetByID(id)
	if err != nil || o == nil {
		return o, err
	}
	updates := map[string]interface{}{}
	if dto.Title != nil {
		updates["title"] = *dto.Title
	}
	if dto.Slug != nil {
		updates["slug"] = *dto.Slug
	}
	if dto.Description != nil {
		updates["description"] = *dto.Description
	}
	if err := s.db.Model(o).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

func (s *Service) Delete(id string) error {
	return s.db.Delete(&models.OfferingModel{}, "id = ?", id).Error
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/services", authMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.List()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]offeringResponse, len(items))
	for i, o := range items {
		out[i] = toResponse(&o)
	}
	response.OK(c, out)
}

func (h *Handler) get(c *gin.Context) {
	o, err := h.svc.GetByID(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if o == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(o))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateOfferingDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	o, err := h.svc.Create(&dto)
	if err != nil {
		if errors.Is(err, errSlugTaken) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, toResponse(o))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateOfferingDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	o, err := h.svc.Update(c.Param("id"), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if o == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(o))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
