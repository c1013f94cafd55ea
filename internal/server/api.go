package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/worker-monitor/internal/buffer"
	"github.com/afroash/worker-monitor/internal/export"
	"github.com/afroash/worker-monitor/internal/models"
	"github.com/afroash/worker-monitor/internal/monitor"
)

const (
	DefaultLogRows      = 50
	SnapshotUnavailable = "Image not available"
)

// APIHandler handles HTTP API requests for the dashboard
type APIHandler struct {
	store     SubjectStore
	gate      *Gate
	snapshots SnapshotSource
	logRows   int
	now       func() time.Time
	logger    zerolog.Logger
}

// NewAPIHandler creates a new API handler. snapshots may be nil when no camera is configured.
func NewAPIHandler(store SubjectStore, gate *Gate, snapshots SnapshotSource, logRows int, logger zerolog.Logger) *APIHandler {
	if logRows <= 0 {
		logRows = DefaultLogRows
	}
	return &APIHandler{
		store:     store,
		gate:      gate,
		snapshots: snapshots,
		logRows:   logRows,
		now:       time.Now,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin checks the credential pair and sets the session cookie
func (api *APIHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid login request")
		return
	}

	token, err := api.gate.Login(req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	http.SetCookie(w, api.gate.Cookie(token))
	api.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// SubjectsResponse lists the subjects and which one is being polled
type SubjectsResponse struct {
	Active   string                  `json:"active"`
	Subjects []models.Subject        `json:"subjects"`
	Status   []monitor.SubjectStatus `json:"status"`
}

// HandleSubjects returns all subjects with their status
func (api *APIHandler) HandleSubjects(w http.ResponseWriter, r *http.Request) {
	subjects := api.store.Subjects()
	resp := SubjectsResponse{
		Active:   api.store.Active().ID,
		Subjects: subjects,
		Status:   make([]monitor.SubjectStatus, 0, len(subjects)),
	}
	for _, s := range subjects {
		if st, err := api.store.Status(s.ID); err == nil {
			resp.Status = append(resp.Status, st)
		}
	}
	api.respond(w, r, http.StatusOK, resp)
}

type selectRequest struct {
	SubjectID string `json:"subject_id"`
}

// HandleSelectSubject switches the polled subject
func (api *APIHandler) HandleSelectSubject(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid subject request")
		return
	}
	if err := api.store.SetActive(req.SubjectID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	api.logger.Info().Str("subject", req.SubjectID).Msg("Active subject changed")
	api.respond(w, r, http.StatusOK, map[string]string{"active": req.SubjectID})
}

// CurrentResponse is the latest state of one subject
type CurrentResponse struct {
	Subject models.Subject        `json:"subject"`
	Status  monitor.SubjectStatus `json:"status"`
	Reading *models.Reading       `json:"reading"`
	Alerts  []models.Alert        `json:"alerts"`
	Warning string                `json:"warning,omitempty"`
}

// HandleCurrent returns the latest reading and the alerts of the last cycle
func (api *APIHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	subject, ok := api.subject(w, r)
	if !ok {
		return
	}

	resp := CurrentResponse{Subject: subject, Alerts: []models.Alert{}}
	resp.Status, _ = api.store.Status(subject.ID)
	if reading, found, _ := api.store.Latest(subject.ID); found {
		resp.Reading = &reading
	}
	if last, found := api.store.LastResult(subject.ID); found {
		if last.OK() {
			resp.Alerts = last.Alerts
		} else {
			resp.Warning = fmt.Sprintf("Error fetching data: %v", last.Err)
		}
	}
	api.respond(w, r, http.StatusOK, resp)
}

// HandleSeries returns the chart series over the window
func (api *APIHandler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	window, subject, ok := api.window(w, r)
	if !ok {
		return
	}
	api.respond(w, r, http.StatusOK, NewSeries(subject.ID, window))
}

// HandleLog returns the last rows of the window, oldest first
func (api *APIHandler) HandleLog(w http.ResponseWriter, r *http.Request) {
	window, _, ok := api.window(w, r)
	if !ok {
		return
	}

	limit := api.logRows
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	api.respond(w, r, http.StatusOK, buffer.Tail(window, limit))
}

// HandleExportCSV downloads the window as CSV
func (api *APIHandler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	api.download(w, r, "csv", export.CSVContentType, export.WriteCSV)
}

// HandleExportXLSX downloads the window as an Excel workbook
func (api *APIHandler) HandleExportXLSX(w http.ResponseWriter, r *http.Request) {
	api.download(w, r, "xlsx", export.XLSXContentType, export.WriteXLSX)
}

func (api *APIHandler) download(w http.ResponseWriter, r *http.Request, ext, contentType string,
	write func(w io.Writer, readings []models.Reading) error) {
	window, subject, ok := api.window(w, r)
	if !ok {
		return
	}

	// Render fully before writing headers so a failure can still become a 500.
	var buf bytes.Buffer
	if err := write(&buf, window); err != nil {
		api.logger.Error().Err(err).Str("format", ext).Msg("Export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(subject.ID, ext)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// HandleSnapshot serves the latest camera frame as JPEG, or 503 when unavailable
func (api *APIHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if api.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, SnapshotUnavailable)
		return
	}

	snap, err := api.snapshots.Capture(r.Context())
	if err != nil {
		api.logger.Warn().Err(err).Msg("Snapshot unavailable")
		writeError(w, http.StatusServiceUnavailable, SnapshotUnavailable)
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, snap.Image, &jpeg.Options{Quality: 85}); err != nil {
		api.logger.Error().Err(err).Msg("Failed to encode snapshot")
		writeError(w, http.StatusServiceUnavailable, SnapshotUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// respond writes v as JSON and logs when it cannot be encoded.
func (api *APIHandler) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		api.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Failed to encode response")
	}
}

// subject resolves ?subject_id=, defaulting to the active subject.
func (api *APIHandler) subject(w http.ResponseWriter, r *http.Request) (models.Subject, bool) {
	id := r.URL.Query().Get("subject_id")
	if id == "" {
		return api.store.Active(), true
	}
	subject, err := api.store.Subject(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return models.Subject{}, false
	}
	return subject, true
}

func (api *APIHandler) window(w http.ResponseWriter, r *http.Request) ([]models.Reading, models.Subject, bool) {
	subject, ok := api.subject(w, r)
	if !ok {
		return nil, models.Subject{}, false
	}
	window, err := api.store.Window(subject.ID, api.now())
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, models.Subject{}, false
	}
	return window, subject, true
}
