package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/labstack/echo/v4"

	"feedhub/internal/feed"
	"feedhub/internal/model"
)

const maxSourceBatch = 50

var sourceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

type sourceInput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Homepage string `json:"homepage"`
	URL      string `json:"url"`
	Locale   string `json:"locale"`
	Logo     string `json:"logo"`
}

type sourceDTO struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Homepage      string     `json:"homepage"`
	URL           string     `json:"url"`
	Locale        string     `json:"locale"`
	Logo          *string    `json:"logo"`
	LastFetchedAt *time.Time `json:"lastFetchedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// listSources handles GET /api/sources.
func (h *Handler) listSources(c echo.Context) error {
	sources, err := h.store.ListSources(c.Request().Context())
	if err != nil {
		h.log.Error("list sources", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to fetch sources"))
	}

	data := make([]sourceDTO, 0, len(sources))
	for _, s := range sources {
		data = append(data, sourceDTO{
			ID:            s.ID,
			Name:          s.Name,
			Homepage:      s.Homepage,
			URL:           s.URL,
			Locale:        s.Locale,
			Logo:          nullable(s.Logo),
			LastFetchedAt: s.LastFetchedAt,
			CreatedAt:     s.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": data})
}

// upsertSources handles POST /api/sources. It accepts a single source
// object or an array of them. Validation is batch-atomic: one invalid
// entry rejects the whole request before any write.
func (h *Handler) upsertSources(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("Invalid request body"))
	}

	inputs, err := decodeSourceInputs(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("Invalid request body"))
	}
	if len(inputs) == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse("Invalid request body"))
	}
	if len(inputs) > maxSourceBatch {
		return c.JSON(http.StatusBadRequest, errorResponse(fmt.Sprintf("Maximum %d sources per request", maxSourceBatch)))
	}

	sources := make([]model.Source, 0, len(inputs))
	for _, in := range inputs {
		src, err := validateSource(in)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		}
		sources = append(sources, src)
	}

	if err := h.store.UpsertSources(c.Request().Context(), sources); err != nil {
		h.log.Error("upsert sources", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse("Failed to add sources"))
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Added/updated %d source(s)", len(sources)),
	})
}

func decodeSourceInputs(body []byte) ([]sourceInput, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var inputs []sourceInput
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			return nil, err
		}
		return inputs, nil
	}
	var single sourceInput
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	return []sourceInput{single}, nil
}

func validateSource(in sourceInput) (model.Source, error) {
	if in.ID == "" || in.Name == "" || in.URL == "" || in.Homepage == "" || in.Locale == "" {
		return model.Source{}, fmt.Errorf("each source must have id, name, url, homepage, and locale")
	}
	if !feed.IsHTTPURL(in.URL) {
		return model.Source{}, fmt.Errorf("invalid feed URL: %s", in.URL)
	}
	if !feed.IsHTTPURL(in.Homepage) {
		return model.Source{}, fmt.Errorf("invalid homepage URL: %s", in.Homepage)
	}
	if !sourceIDPattern.MatchString(in.ID) {
		return model.Source{}, fmt.Errorf("invalid source ID format: %s", in.ID)
	}

	logo := ""
	if feed.IsHTTPURL(in.Logo) {
		logo = in.Logo
	}

	return model.Source{
		ID:       truncate(in.ID, 100),
		Name:     sanitize(in.Name, 200),
		Homepage: in.Homepage,
		URL:      in.URL,
		Locale:   sanitize(in.Locale, 50),
		Logo:     logo,
	}, nil
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

func sanitize(s string, maxRunes int) string {
	return html.EscapeString(truncate(s, maxRunes))
}
