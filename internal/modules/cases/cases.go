package cases

import (
	"errors"
	"time"

	"github.com/andorinha-digital/core/internal/models"
	"github.com/andorinha-digital/core/internal/modules/webhook"
	"github.com/andorinha-digital/core/internal/pkg/pagination"
	"github.com/andorinha-digital/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var errSlugTaken = errors.New("slug already exists")

type CreateCaseDTO struct {
	Title  string `json:"title" binding:"required"`
	Slug   string `json:"slug"  binding:"required"`
	Client string `json:"client"`
	Text   string `json:"text"`
}

type UpdateCaseDTO struct {
	Title  *string `json:"title"`
	Slug   *string `json:"slug"`
	Client *string `json:"client"`
	Text   *string `json:"text"`
}

type caseResponse struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Slug     string    `json:"slug"`
	Client   string    `json:"client"`
	Text     string    `json:"text"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

func toResponse(cs *models.CaseStudyModel) caseResponse {
	return caseResponse{
		ID: cs.ID, Title: cs.Title, Slug: cs.Slug, Client: cs.Client, Text: cs.Text,
		Created: cs.CreatedAt, Modified: cs.UpdatedAt,
	}
}

type Service struct {
	db    *gorm.DB
	hooks *webhook.Service
}

func NewService(db *gorm.DB, hooks *webhook.Service) *Service {
	return &Service{db: db, hooks: hooks}
}

func (s *Service) List(q pagination.Query) ([]models.CaseStudyModel, response.Pagination, error) {
	tx := s.db.Model(&models.CaseStudyModel{}).Order("created_at DESC")
	var items []models.CaseStudyModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) GetByID(id string) (*models.CaseStudyModel, error) {
	var cs models.CaseStudyModel
	if err := s.db.First(&cs, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cs, nil
}

func (s *Service) Create(dto *CreateCaseDTO) (*models.CaseStudyModel, error) {
	var count int64
	s.db.Model(&models.CaseStudyModel{}).Where("slug = ?", dto.Slug).Count(&count)
	if count > 0 {
		return nil, errSlugTaken
	}
	cs := models.CaseStudyModel{Title: dto.Title, Slug: dto.Slug, Client: dto.Client, Text: dto.Text}
	if err := s.db.Create(&cs).Error; err != nil {
		return nil, err
	}
	s.hooks.DispatchCaseCreated(&cs)
	return &cs, nil
}

func (s *Service) Update(id string, dto *UpdateCaseDTO) (*models.CaseStudyModel, error) {
	cs, err := s.GetByID(id)
	if err != nil || cs == nil {
		return cs, err
	}
	updates := map[string]interface{}{}
	if dto.Title != nil {
		updates["title"] = *dto.Title
	}
	if dto.Slug != nil {
		updates["slug"] = *dto.Slug
	}
	if dto.Client != nil {
		updates["client"] = *dto.Client
	}
	if dto.Text != nil {
		updates["text"] = *dto.Text
	}
	if err := s.db.Model(cs).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

func (s *Service) Delete(id string) error {
	return s.db.Delete(&models.CaseStudyModel{}, "id = ?", id).Error
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/cases", authMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.List(q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]caseResponse, len(items))
	for i, cs := range items {
		out[i] = toResponse(&cs)
	}
	response.Paged(c, out, pag)
}

func (h *Handler) get(c *gin.Context) {
	cs, err := h.svc.GetByID(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if cs == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(cs))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateCaseDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cs, err := h.svc.Create(&dto)
	if err != nil {
		if errors.Is(err, errSlugTaken) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, toResponse(cs))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateCaseDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cs, err := h.svc.Update(c.Param("id"), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if cs == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(cs))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
