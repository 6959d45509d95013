package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coomunity/ayni/internal/app/economy"
)

// ─── Economy API ────────────────────────────────────────────────────────────
//
// POST /api/actors                       register an actor
// GET  /api/actors/{id}                  actor + threshold state
// GET  /api/actors/{id}/score            current reciprocity score
// GET  /api/actors/{id}/balance          ledger balance fold
// GET  /api/actors/{id}/transactions     ledger history (?limit=)
// GET  /api/actors/{id}/events           event history (?from=&to= RFC 3339)
// POST /api/events                       record a reciprocity event
// POST /api/transfers                    transfer Ünits (Idempotency-Key)
// POST /api/transfers/{id}/reverse       compensating reversal
// POST /api/grants                       system-funded issuance
// POST /api/distributions                revenue split (Idempotency-Key)
// GET  /api/distributions/{id}           stored distribution
// GET  /api/leaderboard                  top actors (?limit=)
// GET  /api/audit                        ledger conservation report

type registerActorRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleRegisterActor(w http.ResponseWriter, r *http.Request) {
	var req registerActorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	actor, err := s.svc.RegisterActor(r.Context(), req.ID, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, actor)
}

func (s *Server) handleGetActor(w http.ResponseWriter, r *http.Request) {
	actor, err := s.svc.GetActor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actor)
}

func (s *Server) handleGetScore(w http.ResponseWriter, r *http.Request) {
	score, err := s.svc.GetScore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := s.svc.GetBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, err)
		return
	}
	txs, err := s.svc.Transactions(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, err)
		return
	}
	evs, err := s.svc.Events(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req economy.RecordEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.RecordEvent(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req economy.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	res, err := s.svc.Transfer(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

type reverseRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	tx, err := s.svc.Reverse(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req economy.GrantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tx, err := s.svc.Grant(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleCreateDistribution(w http.ResponseWriter, r *http.Request) {
	var req economy.DistributionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	d, err := s.svc.CreateDistribution(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if d.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, d)
}

func (s *Server) handleGetDistribution(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.GetDistribution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Audit(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !report.Consistent {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}
