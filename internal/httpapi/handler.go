package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"adaqueue/routing-service/internal/feed"
	"adaqueue/routing-service/internal/metrics"
	"adaqueue/routing-service/internal/models"
	"adaqueue/routing-service/internal/routing"
	"adaqueue/routing-service/internal/scope"
	"adaqueue/routing-service/internal/store"
	"adaqueue/routing-service/internal/workflow"

	"github.com/google/uuid"
)

type Handler struct {
	workflows *workflow.Store
	profiles  store.WorkflowStore
	tickets   store.TicketStore
	validator *routing.Validator
	feeds     *feed.Registry
}

func NewHandler(workflows *workflow.Store, profiles store.WorkflowStore, tickets store.TicketStore, validator *routing.Validator, feeds *feed.Registry) *Handler {
	return &Handler{
		workflows: workflows,
		profiles:  profiles,
		tickets:   tickets,
		validator: validator,
		feeds:     feeds,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/profiles", h.handleProfiles)
	mux.HandleFunc("/api/profiles/", h.handleProfileByCode)
	mux.HandleFunc("/api/workflows/save", h.handleWorkflowSave)
	mux.HandleFunc("/api/workflows/", h.handleWorkflowGet)
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/bulk", h.handleBulk)
	mux.HandleFunc("/api/console/actions", h.handleConsoleActions)
	mux.HandleFunc("/api/console/execute", h.handleConsoleExecute)
	mux.HandleFunc("/api/boards/", h.handleBoard)
	mux.HandleFunc("/api/kiosks/", h.handleKiosk)
	mux.HandleFunc("/api/points/", h.handlePoint)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- profiles ---

type profileRequest struct {
	RequestID string `json:"requestId"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	AgnCode   string `json:"agnCode"`
}

func (h *Handler) handleProfiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		profiles, err := h.profiles.ListProfiles(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		if profiles == nil {
			profiles = []models.Profile{}
		}
		writeJSON(w, http.StatusOK, profiles)
	case http.MethodPost:
		var req profileRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		profile, err := h.profiles.CreateProfile(r.Context(), models.Profile{
			Code:    strings.TrimSpace(req.Code),
			Name:    req.Name,
			AgnCode: strings.TrimSpace(req.AgnCode),
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, req.RequestID, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleProfileByCode(w http.ResponseWriter, r *http.Request) {
	code := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/profiles/"), "/")
	if code == "" || strings.Contains(code, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req profileRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		err := h.profiles.UpdateProfile(r.Context(), models.Profile{
			Code:    code,
			Name:    req.Name,
			AgnCode: strings.TrimSpace(req.AgnCode),
		})
		if err != nil {
			status, errCode, msg := mapError(err)
			writeError(w, req.RequestID, status, errCode, msg)
			return
		}
		writeJSON(w, http.StatusOK, models.Profile{Code: code, Name: req.Name, AgnCode: strings.TrimSpace(req.AgnCode)})
	case http.MethodDelete:
		if err := h.profiles.DeleteProfile(r.Context(), code); err != nil {
			status, errCode, msg := mapError(err)
			writeError(w, "", status, errCode, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// --- workflow designer ---

func (h *Handler) handleWorkflowGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	profileID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/workflows/"), "/")
	if profileID == "" || strings.Contains(profileID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	def, err := h.workflows.Load(r.Context(), profileID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *Handler) handleWorkflowSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var def models.WorkflowDefinition
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&def); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(def.ProfileID) == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "profileId is required")
		return
	}
	if err := h.workflows.Save(r.Context(), def); err != nil {
		var invalid *workflow.ValidationError
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":    "invalid_workflow",
				"findings": invalid.Findings,
			})
			return
		}
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// --- tickets ---

type createTicketRequest struct {
	RequestID string `json:"requestId"`
	ProfileID string `json:"profileId"`
	GroupCode string `json:"serviceGroup"`
	KioskCode string `json:"kioskCode"`
	Channel   string `json:"channel"`
	Priority  string `json:"priority"`
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		profileID := strings.TrimSpace(r.URL.Query().Get("profileId"))
		if profileID == "" {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "profileId is required")
			return
		}
		// Feed managers live for the process once started; only profiles
		// that actually exist get one.
		if _, err := h.workflows.Load(r.Context(), profileID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		manager := h.feeds.Manager(profileID)
		if err := manager.EnsureReady(r.Context()); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		snapshot := manager.Snapshot()
		writeJSON(w, http.StatusOK, map[string]any{
			"state":       snapshot.State,
			"lastRefresh": snapshot.LastRefresh,
			"tickets":     snapshot.Tickets,
		})
	case http.MethodPost:
		var req createTicketRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.ProfileID = strings.TrimSpace(req.ProfileID)
		req.GroupCode = strings.TrimSpace(req.GroupCode)
		if req.ProfileID == "" || req.GroupCode == "" {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "profileId and serviceGroup are required")
			return
		}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}
		// A kiosk may only issue tickets for groups inside its scope.
		if req.KioskCode != "" {
			def, err := h.workflows.Load(r.Context(), req.ProfileID)
			if err != nil {
				status, code, msg := mapError(err)
				writeError(w, req.RequestID, status, code, msg)
				return
			}
			resolver := scope.NewResolver(def)
			groups, err := resolver.ForKiosk(scope.Session{
				ProfileID:      req.ProfileID,
				Touchpoint:     scope.TouchpointKiosk,
				TouchpointCode: req.KioskCode,
				Role:           models.RoleKiosk,
			})
			if err != nil {
				status, code, msg := mapError(err)
				writeError(w, req.RequestID, status, code, msg)
				return
			}
			if !groupVisible(groups, req.GroupCode) {
				writeError(w, req.RequestID, http.StatusForbidden, "group_not_visible", "service group not available on this kiosk")
				return
			}
		}
		if req.Channel == "" {
			req.Channel = "kiosk"
		}
		if req.Priority == "" {
			req.Priority = "Standard"
		}
		ticket, err := h.tickets.CreateTicket(r.Context(), store.CreateTicketInput{
			RequestID:   req.RequestID,
			ProfileID:   req.ProfileID,
			GroupCode:   req.GroupCode,
			Channel:     req.Channel,
			Priority:    req.Priority,
			CheckInTime: time.Now().UTC(),
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, req.RequestID, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// --- staff console ---

func (h *Handler) handleConsoleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	docNo := strings.TrimSpace(r.URL.Query().Get("docNo"))
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	if docNo == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "docNo is required")
		return
	}
	if role == "" {
		role = models.RoleStaff
	}
	actions, err := h.validator.ActionsForTicket(r.Context(), docNo, role)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

type executeRequest struct {
	RequestID   string `json:"requestId"`
	DocNo       string `json:"docNo"`
	TargetState string `json:"targetState"`
	Role        string `json:"role"`
	PointCode   string `json:"pointCode"`
}

func (h *Handler) handleConsoleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.DocNo = strings.TrimSpace(req.DocNo)
	req.TargetState = strings.TrimSpace(req.TargetState)
	if req.DocNo == "" || req.TargetState == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "docNo and targetState are required")
		return
	}
	if req.Role == "" {
		req.Role = models.RoleStaff
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ticket, err := h.validator.Apply(r.Context(), req.RequestID, req.DocNo, req.TargetState, routing.Actor{
		Role:      req.Role,
		PointCode: req.PointCode,
	})
	if err != nil {
		metrics.TransitionsRejected.WithLabelValues(rejectionReason(err)).Inc()
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	metrics.TransitionsApplied.Inc()
	writeJSON(w, http.StatusOK, ticket)
}

type bulkRequest struct {
	RequestID string   `json:"requestId"`
	DocNos    []string `json:"docNos"`
	Action    string   `json:"action"`
	Role      string   `json:"role"`
	PointCode string   `json:"pointCode"`
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req bulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.DocNos) == 0 || strings.TrimSpace(req.Action) == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "docNos and action are required")
		return
	}
	if req.Role == "" {
		req.Role = models.RoleStaff
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	result, err := h.validator.ApplyBulk(r.Context(), req.RequestID, req.DocNos, req.Action, routing.Actor{
		Role:      req.Role,
		PointCode: req.PointCode,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- touchpoint views ---

// touchpointPath splits /api/<kind>/{profileID}/{code}[/suffix].
func touchpointPath(path, prefix string) (profileID, code, suffix string, ok bool) {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	parts := strings.Split(trimmed, "/")
	switch len(parts) {
	case 2:
		return parts[0], parts[1], "", parts[0] != "" && parts[1] != ""
	case 3:
		return parts[0], parts[1], parts[2], parts[0] != "" && parts[1] != ""
	default:
		return "", "", "", false
	}
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	profileID, boardCode, suffix, ok := touchpointPath(r.URL.Path, "/api/boards/")
	if !ok || suffix != "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	def, snapshot, errResp := h.loadView(w, r, profileID)
	if errResp {
		return
	}
	resolver := scope.NewResolver(def)
	plan, err := resolver.ForDisplayBoard(scope.Session{
		ProfileID:      profileID,
		Touchpoint:     scope.TouchpointDisplayBoard,
		TouchpointCode: boardCode,
	}, snapshot.Tickets)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feedState":   snapshot.State,
		"lastRefresh": snapshot.LastRefresh,
		"plan":        plan,
	})
}

func (h *Handler) handleKiosk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	profileID, kioskCode, suffix, ok := touchpointPath(r.URL.Path, "/api/kiosks/")
	if !ok || suffix != "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	def, err := h.workflows.Load(r.Context(), profileID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	resolver := scope.NewResolver(def)
	groups, err := resolver.ForKiosk(scope.Session{
		ProfileID:      profileID,
		Touchpoint:     scope.TouchpointKiosk,
		TouchpointCode: kioskCode,
		Role:           models.RoleKiosk,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"serviceGroups": groups})
}

func (h *Handler) handlePoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	profileID, pointCode, suffix, ok := touchpointPath(r.URL.Path, "/api/points/")
	if !ok || suffix != "tickets" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	def, snapshot, errResp := h.loadView(w, r, profileID)
	if errResp {
		return
	}
	resolver := scope.NewResolver(def)
	tickets, err := resolver.ForServicePoint(scope.Session{
		ProfileID:      profileID,
		Touchpoint:     scope.TouchpointServicePoint,
		TouchpointCode: pointCode,
		Role:           models.RoleStaff,
	}, snapshot.Tickets)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feedState":   snapshot.State,
		"lastRefresh": snapshot.LastRefresh,
		"tickets":     tickets,
	})
}

// loadView fetches the workflow and a feed snapshot for a touchpoint read.
// A feed in Error state with last-known-good data still renders; only a
// feed that never loaded fails the request.
func (h *Handler) loadView(w http.ResponseWriter, r *http.Request, profileID string) (models.WorkflowDefinition, feed.Snapshot, bool) {
	def, err := h.workflows.Load(r.Context(), profileID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return models.WorkflowDefinition{}, feed.Snapshot{}, true
	}
	manager := h.feeds.Manager(profileID)
	if err := manager.EnsureReady(r.Context()); err != nil {
		snapshot := manager.Snapshot()
		if snapshot.LastRefresh.IsZero() {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return models.WorkflowDefinition{}, feed.Snapshot{}, true
		}
	}
	return def, manager.Snapshot(), false
}

func groupVisible(groups []models.ServiceGroup, code string) bool {
	for _, group := range groups {
		if group.Code == code {
			return true
		}
	}
	return false
}

// --- shared plumbing ---

type errorResponse struct {
	RequestID string        `json:"requestId"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, store.ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, store.ErrTransitionNotAllowed):
		return "not_allowed"
	case errors.Is(err, store.ErrTicketNotFound):
		return "ticket_not_found"
	default:
		return "other"
	}
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "TICKET_NOT_FOUND", "ticket not found"
	case errors.Is(err, store.ErrTransitionNotAllowed):
		return http.StatusConflict, "TRANSITION_NOT_ALLOWED", "ticket state does not allow this action"
	case errors.Is(err, store.ErrStateMismatch):
		return http.StatusConflict, "CONCURRENT_STATE_MISMATCH", "ticket state changed; refresh and retry"
	case errors.Is(err, store.ErrProfileNotFound):
		return http.StatusNotFound, "profile_not_found", "profile not found"
	case errors.Is(err, store.ErrProfileExists):
		return http.StatusConflict, "profile_exists", "profile already exists"
	case errors.Is(err, store.ErrWorkflowNotFound):
		return http.StatusNotFound, "workflow_not_found", "workflow not found"
	case errors.Is(err, store.ErrGroupNotFound):
		return http.StatusNotFound, "group_not_found", "service group not found"
	case errors.Is(err, store.ErrTouchpointNotFound):
		return http.StatusNotFound, "touchpoint_not_found", "touchpoint not found"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
