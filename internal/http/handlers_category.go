package http

import (
	"net/http"

	"dompet/internal/ledger"
)

func (s *Server) handleCategoriesPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "categories.html", "Categories", "categories")
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	p := parseForm(w, r)
	if p == nil {
		return
	}
	c, err := parseCategory(p)
	if err != nil {
		s.rejectInput(w, r, err)
		return
	}
	s.mutate(w, r, ledger.ChangeCategories, "categories-list", "Category created",
		ledger.CreateCategory{Category: c})
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	p := parseForm(w, r)
	if p == nil {
		return
	}
	c, err := parseCategory(p)
	if err != nil {
		s.rejectInput(w, r, err)
		return
	}
	c.ID = r.PathValue("id")
	s.mutate(w, r, ledger.ChangeCategories, "categories-list", "Category updated",
		ledger.UpdateCategory{Category: c})
}

// handleDeleteCategory leaves subcategories and transactions pointing at the
// removed category; they render as N/A.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, ledger.ChangeCategories, "categories-list", "Category deleted",
		ledger.DeleteCategory{ID: r.PathValue("id")})
}
