package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Lllllllleong/solarleadcapture/internal/attribution"
	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/identity"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
)

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Dashboard.Lead(r.Context(), ownerOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	var req models.LeadUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.deps.Dashboard.UpdateLead(r.Context(), ownerOf(r), req, attribution.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAddBill(w http.ResponseWriter, r *http.Request) {
	files, err := readFiles(w, r, "file")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(files) != 1 {
		s.writeError(w, r, errs.Validation(errs.FieldErrors{"file": "exactly one file is required"}))
		return
	}
	bill, err := s.deps.Dashboard.AddBill(r.Context(), ownerOf(r), files[0])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.UploadBillResponse{
		ID:       bill.ID,
		FileURL:  bill.FileURL,
		FilePath: bill.FilePath,
		FileName: bill.FileName,
		FileSize: bill.FileSize,
		MimeType: bill.MimeType,
	})
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Dashboard.DeleteBill(r.Context(), ownerOf(r), chi.URLParam(r, "billID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var req models.ContactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.deps.Contact.Submit(r.Context(), req, attribution.FromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Review.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []models.LeadRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reviewer, _ := identity.FromContext(r.Context())
	if err := s.deps.Review.Decide(r.Context(), reviewer.UserID, chi.URLParam(r, "userID"), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
