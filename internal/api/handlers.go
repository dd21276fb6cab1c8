package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/foundly/foundly/internal/automatch"
	"github.com/foundly/foundly/internal/item"
	"github.com/foundly/foundly/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createItemResponse struct {
	Item     *item.Item `json:"item"`
	Matching string     `json:"matching"`
}

// handleCreateItem validates and persists a report, then enqueues the
// auto-match trigger. The response is 202: the report is accepted while
// matching proceeds in the background, and a queue problem is never the
// reporter's problem.
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var report item.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := report.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	it := report.ToItem()
	it.CreatedAt = time.Now().UTC()

	// Image-derived labels widen the tag signal for photo-heavy,
	// text-light reports. Detection problems are invisible to the
	// reporter.
	if s.detector != nil && len(it.ImageRefs) > 0 {
		for _, ref := range it.ImageRefs {
			data, ok := inlineImageData(ref)
			if !ok {
				continue
			}
			it.Tags = append(it.Tags, s.detector.Labels(data)...)
		}
		it.Normalize()
	}
	if err := s.items.CreateItem(r.Context(), &it); err != nil {
		s.log.WithError(err).Error("item create failed")
		writeError(w, http.StatusInternalServerError, "could not store item")
		return
	}

	matching := "queued"
	if !s.queue.Submit(it.ID) {
		matching = "deferred"
	}

	writeJSON(w, http.StatusAccepted, createItemResponse{Item: &it, Matching: matching})
}

// inlineImageData extracts the base64 payload the detection sidecar
// expects from an image ref. Only inline refs qualify: a data URL or a
// bare base64 blob. URL refs point at a location, not content, so they
// are skipped rather than sent as garbage.
func inlineImageData(ref string) (string, bool) {
	if strings.HasPrefix(ref, "data:") {
		if i := strings.Index(ref, ","); i >= 0 && i < len(ref)-1 {
			return ref[i+1:], true
		}
		return "", false
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return "", false
	}
	return ref, true
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	it, err := s.items.GetItem(r.Context(), id)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.WithError(err).Error("item fetch failed")
		writeError(w, http.StatusInternalServerError, "could not load item")
		return
	}
	writeJSON(w, http.StatusOK, it)
}

type runMatchResponse struct {
	Outcome automatch.Outcome  `json:"outcome"`
	Match   *store.MatchRecord `json:"match,omitempty"`
}

// handleRunMatch runs the pipeline synchronously for one item. Safe to
// call repeatedly: a pair that is already matched reports
// already_matched rather than erroring or duplicating.
func (s *Server) handleRunMatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	res, err := s.orc.Run(r.Context(), id)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.WithError(err).WithField("item", id).Error("match run failed")
		writeError(w, http.StatusInternalServerError, "match run failed")
		return
	}
	writeJSON(w, http.StatusOK, runMatchResponse{Outcome: res.Outcome, Match: res.Record})
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.items.GetItem(r.Context(), id); err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.WithError(err).Error("item fetch failed")
		writeError(w, http.StatusInternalServerError, "could not load item")
		return
	}

	records, err := s.matches.ListForItem(r.Context(), id)
	if err != nil {
		s.log.WithError(err).Error("match list failed")
		writeError(w, http.StatusInternalServerError, "could not load matches")
		return
	}
	if records == nil {
		records = []*store.MatchRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

type matchStatusRequest struct {
	Status store.MatchStatus `json:"status"`
}

// handleMatchStatus verifies or rejects a match. Rejecting frees the
// pair for future matching: the record stops counting as active and
// both items return to the pending pool.
func (s *Server) handleMatchStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req matchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status != store.MatchVerified && req.Status != store.MatchRejected {
		writeError(w, http.StatusBadRequest, "status must be verified or rejected")
		return
	}

	rec, err := s.matches.GetMatch(r.Context(), id)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.WithError(err).Error("match fetch failed")
		writeError(w, http.StatusInternalServerError, "could not load match")
		return
	}

	if err := s.matches.UpdateStatus(r.Context(), id, req.Status); err != nil {
		s.log.WithError(err).Error("match status update failed")
		writeError(w, http.StatusInternalServerError, "could not update match")
		return
	}

	if req.Status == store.MatchRejected {
		// Items that moved past matched (claimed, resolved) stay put;
		// the lifecycle check refuses the regression and we only log it.
		for _, itemID := range []string{rec.LostItemID, rec.FoundItemID} {
			if err := s.items.SetStatus(r.Context(), itemID, item.StatusPending); err != nil {
				s.log.WithError(err).WithField("item", itemID).Warn("could not reopen item after rejection")
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}
