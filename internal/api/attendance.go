package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/serverdb"
)

// BatchRequest is the JSON body for POST /v1/attendance/batch.
type BatchRequest struct {
	DeviceID string        `json:"device_id"`
	Records  []RecordInput `json:"records"`
}

// RecordInput is one submitted attendance mark.
type RecordInput struct {
	LocalID    string `json:"local_id"`
	StudentID  string `json:"student_id"`
	TeacherID  string `json:"teacher_id"`
	ClassID    string `json:"class_id"`
	Subject    string `json:"subject,omitempty"`
	Period     string `json:"period,omitempty"`
	Date       string `json:"date"`
	Status     string `json:"status"`
	Method     string `json:"method"`
	CapturedAt string `json:"captured_at"`
}

// BatchResponse is the JSON response for a batch submission.
type BatchResponse struct {
	Accepted []string         `json:"accepted"`
	Rejected []RejectResponse `json:"rejected,omitempty"`
}

// RejectResponse is a single rejected record.
type RejectResponse struct {
	LocalID string `json:"local_id"`
	Reason  string `json:"reason"`
	Code    string `json:"code"`
}

// RosterResponse is the JSON response for GET /v1/roster.
type RosterResponse struct {
	Students []models.Student `json:"students"`
	Classes  []models.Class   `json:"classes"`
}

var (
	validStatus = map[string]bool{string(models.StatusPresent): true, string(models.StatusAbsent): true}
	validMethod = map[string]bool{string(models.MethodManual): true, string(models.MethodFacial): true, string(models.MethodRFID): true}
)

// toRecord checks one input. A non-empty reason means the record is refused.
func toRecord(in RecordInput, subject string) (serverdb.Record, string) {
	rec := serverdb.Record{
		LocalID:   strings.TrimSpace(in.LocalID),
		StudentID: strings.TrimSpace(in.StudentID),
		TeacherID: strings.TrimSpace(in.TeacherID),
		ClassID:   strings.TrimSpace(in.ClassID),
		Subject:   in.Subject,
		Period:    in.Period,
		Date:      in.Date,
		Status:    in.Status,
		Method:    in.Method,
	}
	if rec.TeacherID == "" {
		rec.TeacherID = subject
	}
	switch {
	case rec.StudentID == "":
		return rec, "student_id is required"
	case rec.ClassID == "":
		return rec, "class_id is required"
	case !validStatus[rec.Status]:
		return rec, fmt.Sprintf("invalid status %q", rec.Status)
	case !validMethod[rec.Method]:
		return rec, fmt.Sprintf("invalid method %q", rec.Method)
	}
	if _, err := time.Parse(models.DateLayout, rec.Date); err != nil {
		return rec, fmt.Sprintf("invalid date %q", rec.Date)
	}
	captured, err := time.Parse(time.RFC3339Nano, in.CapturedAt)
	if err != nil {
		return rec, fmt.Sprintf("invalid captured_at %q", in.CapturedAt)
	}
	rec.CapturedAt = captured
	return rec, ""
}

// handleBatch handles POST /v1/attendance/batch. Records are judged
// individually: one bad record does not fail the batch.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "device_id is required")
		return
	}
	if len(req.Records) > s.config.MaxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge,
			fmt.Sprintf("batch size %d exceeds max %d", len(req.Records), s.config.MaxBatch))
		return
	}

	subject := claimsFromContext(r.Context()).Subject
	resp := BatchResponse{Accepted: []string{}}
	recs := make([]serverdb.Record, 0, len(req.Records))
	for _, in := range req.Records {
		if strings.TrimSpace(in.LocalID) == "" {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "every record needs a local_id")
			return
		}
		rec, reason := toRecord(in, subject)
		if reason != "" {
			resp.Rejected = append(resp.Rejected, RejectResponse{LocalID: rec.LocalID, Reason: reason, Code: serverdb.CodeInvalid})
			continue
		}
		recs = append(recs, rec)
	}

	if len(recs) > 0 {
		res, err := s.store.SubmitBatch(r.Context(), req.DeviceID, recs)
		if err != nil {
			logFor(r.Context()).Error("submit batch", "err", err, "records", len(recs))
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to store attendance")
			return
		}
		resp.Accepted = append(resp.Accepted, res.Accepted...)
		for _, rej := range res.Rejected {
			resp.Rejected = append(resp.Rejected, RejectResponse{LocalID: rej.LocalID, Reason: rej.Reason, Code: rej.Code})
		}
		s.metrics.RecordRecords("duplicate", res.Duplicates)
		s.metrics.RecordRecords("accepted", len(res.Accepted)-res.Duplicates)
	}
	s.metrics.RecordRecords("rejected", len(resp.Rejected))

	logFor(r.Context()).Info("batch",
		"device", req.DeviceID,
		"accepted", len(resp.Accepted),
		"rejected", len(resp.Rejected),
	)
	writeJSON(w, http.StatusOK, resp)
}

// handleRoster handles GET /v1/roster?class_id=.
func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	classID := r.URL.Query().Get("class_id")
	students, classes, err := s.store.Roster(r.Context(), classID)
	if err != nil {
		logFor(r.Context()).Error("roster", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load roster")
		return
	}
	writeJSON(w, http.StatusOK, RosterResponse{Students: students, Classes: classes})
}
