package http

import (
	"net/http"

	"kas/internal/auth"
	"kas/internal/ledger"
	"kas/internal/log"
)

type reconcileResponse struct {
	Created int             `json:"created"`
	Periods []ledger.Period `json:"periods"`
}

// handleRollingByStudent backfills the window before answering.
func (s *Server) handleRollingByStudent(w http.ResponseWriter, r *http.Request) {
	view, err := s.ledger.RollingByStudent(r.Context(), auth.OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err, "Ledger not found")
		return
	}
	NewJSONResponse().JSON(view).Write(w)
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	months, err := s.ledger.MonthlySummary(r.Context(), auth.OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err, "Ledger not found")
		return
	}
	NewJSONResponse().JSON(months).Write(w)
}

// handleReconcile reports how many placeholders were created and the
// distinct months they landed in, in window order.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerFromContext(r.Context())
	res, err := s.ledger.Reconcile(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err, "Ledger not found")
		return
	}
	s.appMetrics.reconciled(len(res.Created))

	touched := make(map[ledger.Period]bool, len(res.Created))
	for _, tx := range res.Created {
		touched[ledger.PeriodOf(tx.OccurredOn)] = true
	}
	periods := make([]ledger.Period, 0, len(touched))
	for _, p := range res.Window {
		if touched[p] {
			periods = append(periods, p)
		}
	}

	log.NewStructuredLogger(log.FromContext(r.Context())).LogReconciled(r.Context(), ownerID, len(res.Created))
	NewJSONResponse().JSON(reconcileResponse{Created: len(res.Created), Periods: periods}).Write(w)
}
