package post

import (
	"bytes"
	"errors"
	"time"

	"github.com/andorinha-digital/core/internal/middleware"
	"github.com/andorinha-digital/core/internal/models"
	"github.com/andorinha-digital/core/internal/modules/webhook"
	"github.com/andorinha-digital/core/internal/pkg/pagination"
	"github.com/andorinha-digital/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gorm.io/gorm"
)

var errSlugTaken = errors.New("slug already exists")

// markdown renders post bodies for the public site.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type CreatePostDTO struct {
	Title   string `json:"title" binding:"required"`
	Slug    string `json:"slug"  binding:"required"`
	Text    string `json:"text"`
	Summary string `json:"summary"`
}

type UpdatePostDTO struct {
	Title   *string `json:"title"`
	Slug    *string `json:"slug"`
	Text    *string `json:"text"`
	Summary *string `json:"summary"`
}

type postResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Text        string     `json:"text"`
	HTML        string     `json:"html"`
	Summary     string     `json:"summary"`
	AuthorID    string     `json:"author_id"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at"`
	Created     time.Time  `json:"created"`
	Modified    time.Time  `json:"modified"`
}

func toResponse(p *models.PostModel) postResponse {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(p.Text), &buf); err != nil {
		buf.Reset()
	}
	return postResponse{
		ID: p.ID, Title: p.Title, Slug: p.Slug,
		Text: p.Text, HTML: buf.String(), Summary: p.Summary,
		AuthorID: p.AuthorID, Published: p.Published, PublishedAt: p.PublishedAt,
		Created: p.CreatedAt, Modified: p.UpdatedAt,
	}
}

type Service struct {
	db    *gorm.DB
	hooks *webhook.Service
}

func NewService(db *gorm.DB, hooks *webhook.Service) *Service {
	return &Service{db: db, hooks: hooks}
}

func (s *Service) List(q pagination.Query) ([]models.PostModel, response.Pagination, error) {
	tx := s.db.Model(&models.PostModel{}).Order("created_at DESC")
	var items []models.PostModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) GetByID(id string) (*models.PostModel, error) {
	var p models.PostModel
	if err := s.db.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *Service) Create(dto *CreatePostDTO, authorID string) (*models.PostModel, error) {
	var count int64
	s.db.Model(&models.PostModel{}).Where("slug = ?", dto.Slug).Count(&count)
	if count > 0 {
		return nil, errSlugTaken
	}
	p := models.PostModel{
		Title: dto.Title, Slug: dto.Slug, Text: dto.Text,
		Summary: dto.Summary, AuthorID: authorID,
	}
	return &p, s.db.Create(&p).Error
}

func (s *Service) Update(id string, dto *UpdatePostDTO) (*models.PostModel, error) {
	p, err := s.GetByID(id)
	if err != nil || p == nil {
		return p, err
	}
	updates := map[string]interface{}{}
	if dto.Title != nil {
		updates["title"] = *dto.Title
	}
	if dto.Slug != nil {
		updates["slug"] = *dto.Slug
	}
	if dto.Text != nil {
		updates["text"] = *dto.Text
	}
	if dto.Summary != nil {
		updates["summary"] = *dto.Summary
	}
	if err := s.db.Model(p).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

func (s *Service) Delete(id string) error {
	return s.db.Delete(&models.PostModel{}, "id = ?", id).Error
}

// Publish marks the post published and fires POST_PUBLISHED. Publishing an
// already-published post is a no-op.
func (s *Service) Publish(id, authorName string) (*models.PostModel, error) {
	p, err := s.GetByID(id)
	if err != nil || p == nil {
		return p, err
	}
	if p.Published {
		return p, nil
	}

	now := time.Now()
	if err := s.db.Model(p).Updates(map[string]interface{}{
		"published":    true,
		"published_at": now,
	}).Error; err != nil {
		return nil, err
	}
	p.Published = true
	p.PublishedAt = &now

	s.hooks.DispatchPostPublished(p, authorName)
	return p, nil
}

// Unpublish hides the post and fires POST_UNPUBLISHED.
func (s *Service) Unpublish(id string) (*models.PostModel, error) {
	p, err := s.GetByID(id)
	if err != nil || p == nil {
		return p, err
	}
	if !p.Published {
		return p, nil
	}

	if err := s.db.Model(p).Updates(map[string]interface{}{
		"published":    false,
		"published_at": nil,
	}).Error; err != nil {
		return nil, err
	}
	p.Published = false
	p.PublishedAt = nil

	s.hooks.DispatchPostUnpublished(p)
	return p, nil
}

type Handler struct {
	svc   *Service
	users userNameResolver
}

// userNameResolver avoids a hard dependency on the user module.
type userNameResolver interface {
	GetByID(id string) (*models.UserModel, error)
}

func NewHandler(svc *Service, users userNameResolver) *Handler {
	return &Handler{svc: svc, users: users}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/posts", authMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/publish", h.publish)
	g.POST("/:id/unpublish", h.unpublish)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.List(q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]postResponse, len(items))
	for i, p := range items {
		out[i] = toResponse(&p)
	}
	response.Paged(c, out, pag)
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.svc.GetByID(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if p == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(p))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreatePostDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.svc.Create(&dto, middleware.CurrentUserID(c))
	if err != nil {
		if errors.Is(err, errSlugTaken) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, toResponse(p))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdatePostDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.svc.Update(c.Param("id"), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if p == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(p))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) publish(c *gin.Context) {
	p, err := h.svc.Publish(c.Param("id"), h.resolveAuthorName(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if p == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(p))
}

func (h *Handler) unpublish(c *gin.Context) {
	p, err := h.svc.Unpublish(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if p == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(p))
}

func (h *Handler) resolveAuthorName(c *gin.Context) string {
	u, err := h.users.GetByID(middleware.CurrentUserID(c))
	if err != nil || u == nil {
		return ""
	}
	return u.Name
}
