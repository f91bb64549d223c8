package service

import (
	"strings"

	"github.com/UnendingLoop/PhotoReview/internal/model"
)

const defaultCategory = "other"

func validateQueryParams(req *model.ListRequest) {
	// Обрабатываем пустые значения, присваиваем дефолты если надо
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 30
	}

	// Валидируем порядок
	req.Order = strings.ToLower(strings.TrimSpace(req.Order))
	switch {
	case strings.Contains(req.Order, model.OrderASC), req.Order == "asc":
		req.Order = "ASC"
	default:
		req.Order = "DESC" // по дефолту ставим сортировку "новое-выше"
	}
}

// normalizeCategories - нижний регистр, без дублей, "other" всегда есть и всегда последняя
func normalizeCategories(raw []string) []string {
	seen := make(map[string]bool, len(raw)+1)
	res := make([]string, 0, len(raw)+1)
	for _, c := range raw {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || c == defaultCategory || seen[c] {
			continue
		}
		seen[c] = true
		res = append(res, c)
	}
	return append(res, defaultCategory)
}

func (s *ReviewService) normalizeCategory(c string) (string, error) {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return defaultCategory, nil
	}
	for _, known := range s.categories {
		if c == known {
			return c, nil
		}
	}
	return "", model.ErrUnknownCategory
}
