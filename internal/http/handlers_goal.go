package http

import (
	"net/http"

	"dompet/internal/ledger"
)

func (s *Server) handleGoalsPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "goals.html", "Goals", "goals")
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	p := parseForm(w, r)
	if p == nil {
		return
	}
	g, err := parseGoal(p)
	if err != nil {
		s.rejectInput(w, r, err)
		return
	}
	s.mutate(w, r, ledger.ChangeGoals, "goals-list", "Goal created",
		ledger.CreateGoal{Goal: g})
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	p := parseForm(w, r)
	if p == nil {
		return
	}
	g, err := parseGoal(p)
	if err != nil {
		s.rejectInput(w, r, err)
		return
	}
	g.ID = r.PathValue("id")
	s.mutate(w, r, ledger.ChangeGoals, "goals-list", "Goal updated",
		ledger.UpdateGoal{Goal: g})
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, ledger.ChangeGoals, "goals-list", "Goal deleted",
		ledger.DeleteGoal{ID: r.PathValue("id")})
}
