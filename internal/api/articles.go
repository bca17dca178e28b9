package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"feedhub/internal/model"
	"feedhub/internal/query"
)

type sourceSummaryDTO struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Homepage string  `json:"homepage"`
	Locale   string  `json:"locale"`
	Logo     *string `json:"logo"`
}

type articleDTO struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description *string          `json:"description"`
	Link        string           `json:"link"`
	PubDate     time.Time        `json:"pubDate"`
	Thumbnail   *string          `json:"thumbnail"`
	SourceID    string           `json:"sourceId"`
	Categories  []string         `json:"categories"`
	CreatedAt   time.Time        `json:"createdAt"`
	Source      sourceSummaryDTO `json:"source"`
}

type paginationDTO struct {
	Limit   int    `json:"limit"`
	LastID  *int64 `json:"lastId"`
	HasMore bool   `json:"hasMore"`
}

// listArticles handles GET /api/articles.
func (h *Handler) listArticles(c echo.Context) error {
	params := query.Params{}

	if raw := c.QueryParam("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			params.Limit = v
		}
	}
	params.Category = c.QueryParam("category")
	params.Locale = c.QueryParam("locale")
	if raw := c.QueryParam("sources"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				params.Sources = append(params.Sources, s)
			}
		}
	}
	if raw := c.QueryParam("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			params.Since = &t
		}
	}
	if raw := c.QueryParam("after"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			params.After = v
		}
	}

	page, err := h.query.Articles(c.Request().Context(), params)
	if err != nil {
		h.log.Error("list articles", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to fetch articles"))
	}

	data := make([]articleDTO, 0, len(page.Articles))
	for _, a := range page.Articles {
		data = append(data, toArticleDTO(a))
	}

	pagination := paginationDTO{Limit: page.Limit, HasMore: page.HasMore}
	if page.LastID != 0 {
		pagination.LastID = &page.LastID
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"data":       data,
		"pagination": pagination,
	})
}

func toArticleDTO(a model.ArticleWithSource) articleDTO {
	return articleDTO{
		ID:          a.ID,
		Title:       a.Title,
		Description: nullable(a.Description),
		Link:        a.Link,
		PubDate:     a.PubDate,
		Thumbnail:   nullable(a.Thumbnail),
		SourceID:    a.SourceID,
		Categories:  a.Categories,
		CreatedAt:   a.CreatedAt,
		Source: sourceSummaryDTO{
			ID:       a.Source.ID,
			Name:     a.Source.Name,
			Homepage: a.Source.Homepage,
			Locale:   a.Source.Locale,
			Logo:     nullable(a.Source.Logo),
		},
	}
}
