// Package api exposes HTTP handlers for the time log service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"example.com/timelog/internal/auth"
	"example.com/timelog/internal/domain"
	"example.com/timelog/internal/live"
	"example.com/timelog/internal/persistence"
	"example.com/timelog/internal/projection"
)

// Handler coordinates HTTP requests with the domain service and the live
// update hub.
type Handler struct {
	service     *domain.Service
	hub         *live.Hub
	loc         *time.Location
	startOfWeek time.Weekday
	now         func() time.Time
}

// HandlerOption configures optional Handler behaviour.
type HandlerOption func(*Handler)

// WithHub attaches the live update hub, enabling the live snapshot endpoint.
func WithHub(hub *live.Hub) HandlerOption {
	return func(h *Handler) { h.hub = hub }
}

// WithDefaults sets the timezone and week start used when a request omits
// them.
func WithDefaults(loc *time.Location, startOfWeek time.Weekday) HandlerOption {
	return func(h *Handler) {
		if loc != nil {
			h.loc = loc
		}
		h.startOfWeek = startOfWeek
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:     service,
		loc:         time.UTC,
		startOfWeek: time.Monday,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/intervals/start", h.startInterval)
	mux.HandleFunc("/v1/intervals/stop", h.stopInterval)
	mux.HandleFunc("/v1/intervals", h.listIntervals)
	mux.HandleFunc("/v1/intervals/", h.intervalByID)
	mux.HandleFunc("/v1/timelog/week", h.weekView)
	mux.HandleFunc("/v1/timelog/week/group", h.groupMembers)
	mux.HandleFunc("/v1/timelog/daily", h.dailyTotals)
	mux.HandleFunc("/v1/timelog/live", h.liveSnapshot)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StartIntervalRequest is the payload for POST /v1/intervals/start.
type StartIntervalRequest struct {
	Title   string    `json:"title"`
	Tags    []string  `json:"tags"`
	StartAt time.Time `json:"start_at"`
}

func (h *Handler) startInterval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeTimelogWrite)
	if !ok {
		return
	}

	var req StartIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	iv, err := h.service.Start(r.Context(), domain.StartInput{
		OwnerID: claims.Subject,
		Title:   req.Title,
		Tags:    req.Tags,
		StartAt: req.StartAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIntervalView(*iv))
}

// StopIntervalRequest is the payload for POST /v1/intervals/stop.
type StopIntervalRequest struct {
	EndAt time.Time `json:"end_at"`
}

func (h *Handler) stopInterval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeTimelogWrite)
	if !ok {
		return
	}

	var req StopIntervalRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	iv, err := h.service.Stop(r.Context(), claims.Subject, req.EndAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIntervalView(*iv))
}

func (h *Handler) listIntervals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	items, next, err := h.service.ListPage(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := ListIntervalsResponse{
		Items:      make([]IntervalView, 0, len(items)),
		NextCursor: persistence.EncodeCursor(next),
	}
	for _, iv := range items {
		resp.Items = append(resp.Items, toIntervalView(iv))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateIntervalRequest is the payload for PUT /v1/intervals/{id}. Absent
// fields leave the stored value untouched.
type UpdateIntervalRequest struct {
	Title   *string    `json:"title"`
	Tags    []string   `json:"tags"`
	StartAt *time.Time `json:"start_at"`
	EndAt   *time.Time `json:"end_at"`
}

func (h *Handler) intervalByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/intervals/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing interval id")
		return
	}

	switch r.Method {
	case http.MethodPut:
		h.updateInterval(w, r, id)
	case http.MethodDelete:
		h.deleteInterval(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) updateInterval(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeTimelogWrite)
	if !ok {
		return
	}

	var req UpdateIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	iv, err := h.service.Update(r.Context(), domain.UpdateInput{
		OwnerID: claims.Subject,
		ID:      id,
		Title:   req.Title,
		Tags:    req.Tags,
		StartAt: req.StartAt,
		EndAt:   req.EndAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIntervalView(*iv))
}

func (h *Handler) deleteInterval(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeTimelogWrite)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), claims.Subject, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) weekView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	loc, startOfWeek, at, err := h.viewParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	view, err := h.assemble(w, r, claims.Subject, at, loc, startOfWeek)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, toWeekView(view))
}

func (h *Handler) groupMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	day := r.URL.Query().Get("day")
	title := r.URL.Query().Get("title")
	if day == "" || title == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "day and title parameters are required")
		return
	}

	loc, startOfWeek, at, err := h.viewParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	var tags []string
	if raw := r.URL.Query().Get("tags"); raw != "" {
		tags = strings.Split(raw, ",")
	}
	key := projection.KeyFor(domain.TimeInterval{
		Title: strings.TrimSpace(title),
		Tags:  domain.NormalizeTags(tags),
	})

	view, err := h.assemble(w, r, claims.Subject, at, loc, startOfWeek)
	if err != nil {
		return
	}

	members := view.GroupMembers(projection.DayKey(day), key)
	resp := GroupMembersResponse{Items: make([]IntervalView, 0, len(members))}
	for _, iv := range members {
		resp.Items = append(resp.Items, toIntervalView(iv))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dailyTotals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	loc, _, at, err := h.viewParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	intervals, err := h.service.List(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	totals, err := projection.DailyTotals(claims.Subject, intervals, at, loc)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_data", err.Error())
		return
	}

	resp := DailyTotalsResponse{Days: make([]DailyTotalView, 0, len(totals))}
	for day, total := range totals {
		resp.Days = append(resp.Days, DailyTotalView{
			Date:         string(day),
			TotalSeconds: int64(total / time.Second),
			Total:        projection.FormatHMS(total),
		})
	}
	sort.Slice(resp.Days, func(i, j int) bool { return resp.Days[i].Date > resp.Days[j].Date })
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) liveSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live_disabled", "live updates are not enabled")
		return
	}

	coord := h.hub.Get(claims.Subject)

	// With wait_ms the request long-polls for the next published snapshot,
	// falling back to the latest one on timeout.
	if raw := r.URL.Query().Get("wait_ms"); raw != "" {
		waitMS, err := strconv.Atoi(raw)
		if err != nil || waitMS <= 0 || waitMS > 60000 {
			writeError(w, http.StatusBadRequest, "validation_failed", "wait_ms must be between 1 and 60000")
			return
		}

		timer := time.NewTimer(time.Duration(waitMS) * time.Millisecond)
		defer timer.Stop()

		select {
		case snap := <-coord.Subscribe():
			writeLiveSnapshot(w, coord, snap)
			return
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}

	snap, ok := coord.Latest()
	if !ok {
		writeError(w, http.StatusAccepted, "pending", "no snapshot assembled yet")
		return
	}
	writeLiveSnapshot(w, coord, snap)
}

func writeLiveSnapshot(w http.ResponseWriter, coord *live.Coordinator, snap live.Snapshot) {
	writeJSON(w, http.StatusOK, LiveSnapshotResponse{
		Seq:     snap.Seq,
		Trigger: snap.Trigger,
		State:   stateName(coord.State()),
		View:    toWeekView(snap.View),
	})
}

// assemble lists the owner's full interval snapshot and projects it. Errors
// are written to the response; callers bail out on a non-nil error.
func (h *Handler) assemble(w http.ResponseWriter, r *http.Request, ownerID string, at time.Time, loc *time.Location, startOfWeek time.Weekday) (*projection.View, error) {
	intervals, err := h.service.List(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return nil, err
	}

	view, err := projection.Assemble(ownerID, intervals, at, loc, startOfWeek)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_data", err.Error())
		return nil, err
	}
	return view, nil
}

// viewParams resolves the tz, start_of_week, and at query parameters against
// the configured defaults.
func (h *Handler) viewParams(r *http.Request) (*time.Location, time.Weekday, time.Time, error) {
	loc := h.loc
	if tz := r.URL.Query().Get("tz"); tz != "" {
		loc = projection.ParseTimezone(tz)
	}

	startOfWeek := h.startOfWeek
	if raw := r.URL.Query().Get("start_of_week"); raw != "" {
		parsed, err := projection.ParseWeekday(raw)
		if err != nil {
			return nil, 0, time.Time{}, err
		}
		startOfWeek = parsed
	}

	at := h.now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, 0, time.Time{}, errors.New("at must be RFC3339")
		}
		at = parsed
	}
	return loc, startOfWeek, at, nil
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func requireReadScope(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeTimelogRead) && !claims.HasScope(auth.ScopeTimelogWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope timelog:read required")
		return nil, false
	}
	return claims, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrIntervalNotFound):
		writeError(w, http.StatusNotFound, "not_found", "interval not found")
	case errors.Is(err, domain.ErrOpenIntervalExists):
		writeError(w, http.StatusConflict, "conflict", "an interval is already running")
	case errors.Is(err, domain.ErrNoOpenInterval):
		writeError(w, http.StatusConflict, "conflict", "no interval is running")
	case errors.Is(err, domain.ErrInvalidTitle), errors.Is(err, domain.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
