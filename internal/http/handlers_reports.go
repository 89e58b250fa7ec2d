package http

import (
	"net/http"
	"strings"
	"time"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := parseDateRange(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.reports.Summary(r.Context(), rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := parseRequiredInt(q, "year")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	month, err := parseRequiredInt(q, "month")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.reports.MonthlySummary(r.Context(), year, month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleYearlySummary(w http.ResponseWriter, r *http.Request) {
	year, err := parseRequiredInt(r.URL.Query(), "year")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.reports.YearlySummary(r.Context(), year)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSpendingByCategory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := parseDateRange(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, _, err := parseOptionalInt(q, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.reports.SpendingByCategory(r.Context(), rng, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIncomeVsExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := parseDateRange(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groupBy := strings.ToLower(strings.TrimSpace(q.Get("group_by")))
	out, err := s.reports.IncomeVsExpenses(r.Context(), rng, groupBy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMonthlyTrend defaults ?year to the current year.
func (s *Server) handleMonthlyTrend(w http.ResponseWriter, r *http.Request) {
	year, ok, err := parseOptionalInt(r.URL.Query(), "year")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		year = time.Now().Year()
	}
	out, err := s.reports.MonthlyTrend(r.Context(), year)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDailyPattern(w http.ResponseWriter, r *http.Request) {
	rng, err := parseDateRange(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.reports.DailyPattern(r.Context(), rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	out, err := s.reports.Dashboard(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	out, err := s.reports.Insights(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
