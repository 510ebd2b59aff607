package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Lllllllleong/solarleadcapture/internal/attribution"
	"github.com/Lllllllleong/solarleadcapture/internal/capture"
	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
	"github.com/Lllllllleong/solarleadcapture/internal/services"
	"github.com/Lllllllleong/solarleadcapture/internal/wizard"
)

type documentsResponse struct {
	wizard.Progress
	Rejected []models.FileRejection `json:"rejected"`
}

func (s *Server) session(r *http.Request) (*wizard.Session, error) {
	return s.deps.Onboarding.Session(ownerOf(r), chi.URLParam(r, "sessionID"))
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Onboarding.Start(r.Context(), ownerOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Progress())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Progress())
}

func (s *Server) handleSubmitStep(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	def, ok := wizard.Lookup(s.deps.Steps, chi.URLParam(r, "step"))
	if !ok {
		s.writeError(w, r, errs.Newf(errs.NotFound, "unknown step %q", chi.URLParam(r, "step")))
		return
	}
	var frag wizard.Fragment
	if err := decodeJSON(w, r, &frag); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.SubmitStep(def.ID, frag); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Progress())
}

func (s *Server) handleSelectDocuments(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	files, err := readFiles(w, r, "files")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rejections, err := sess.SelectDocuments(files)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := documentsResponse{Progress: sess.Progress(), Rejected: []models.FileRejection{}}
	for _, rej := range rejections {
		resp.Rejected = append(resp.Rejected, models.FileRejection{FileName: rej.FileName, Error: errs.PublicMessage(rej.Err)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGoBack(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess.GoBack()
	writeJSON(w, http.StatusOK, sess.Progress())
}

// handleSuspend receives page unload and visibility beacons. Unload is
// acknowledged before delivery completes.
func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	sig, err := capture.ParseSignal(r.URL.Query().Get("signal"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.deps.Onboarding.Suspend(r.Context(), sess, attribution.FromContext(r.Context()), sig); err != nil {
		s.writeError(w, r, err)
		return
	}
	if sig == capture.SignalUnload {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	attr := attribution.FromContext(r.Context())
	res, err := s.deps.Onboarding.Finalize(r.Context(), sess, attr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.FinalizeResponse{
		LeadID:    res.LeadID,
		Created:   res.Created,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		Message:   res.Message,
		Redirect:  attr.DecorateURL(services.CompletedRedirect),
	})
}
