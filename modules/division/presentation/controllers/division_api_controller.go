package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/orgforge/divisions/modules/division/presentation/controllers/dtos"
	"github.com/orgforge/divisions/modules/division/services"
	"github.com/orgforge/divisions/pkg/application"
	"github.com/orgforge/divisions/pkg/configuration"
)

// Suggest serves typeahead; its page cap is tighter than the listing one.
const suggestMaxLimit = 50

type DivisionAPIController struct {
	app       application.Application
	divisions *services.DivisionService
	conf      *configuration.Configuration
	apiPrefix string
}

func NewDivisionAPIController(app application.Application) application.Controller {
	return &DivisionAPIController{
		app:       app,
		divisions: app.Service(services.DivisionService{}).(*services.DivisionService),
		conf:      configuration.Use(),
		apiPrefix: "/api/v1/divisions",
	}
}

func (c *DivisionAPIController) Key() string {
	return c.apiPrefix
}

func (c *DivisionAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	// Fixed paths first so they never collide with the {id} routes.
	api.HandleFunc("", c.instrumentAPI("list", c.List)).Methods(http.MethodGet)
	api.HandleFunc("", c.instrumentAPI("create", c.Create)).Methods(http.MethodPost)
	api.HandleFunc("/list", c.instrumentAPI("list_all", c.ListAll)).Methods(http.MethodGet)
	api.HandleFunc("/by-code/{code}", c.instrumentAPI("get_by_code", c.GetByCode)).Methods(http.MethodGet)
	api.HandleFunc("/hierarchy/tree", c.instrumentAPI("hierarchy_tree", c.HierarchyTree)).Methods(http.MethodGet)
	api.HandleFunc("/codes/available", c.instrumentAPI("available_codes", c.AvailableCodes)).Methods(http.MethodGet)
	api.HandleFunc("/search/suggest", c.instrumentAPI("suggest", c.Suggest)).Methods(http.MethodGet)

	api.HandleFunc("/{id:[0-9]+}", c.instrumentAPI("get", c.Get)).Methods(http.MethodGet)
	api.HandleFunc("/{id:[0-9]+}", c.instrumentAPI("update", c.Update)).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/{id:[0-9]+}", c.instrumentAPI("delete", c.Delete)).Methods(http.MethodDelete)
	api.HandleFunc("/{id:[0-9]+}/restore", c.instrumentAPI("restore", c.Restore)).Methods(http.MethodPost)
	api.HandleFunc("/{id:[0-9]+}/children", c.instrumentAPI("children", c.Children)).Methods(http.MethodGet)
	api.HandleFunc("/{id:[0-9]+}/move", c.instrumentAPI("move", c.Move)).Methods(http.MethodPut)
}

func (c *DivisionAPIController) requestID(r *http.Request) string {
	return r.Header.Get(c.conf.RequestIDHeader)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func parseBool(raw string, fallback bool) bool {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

// searchFilters reads the shared listing query params. Listings show active
// divisions unless activeOnly=false is passed explicitly.
func (c *DivisionAPIController) searchFilters(r *http.Request) services.SearchFilters {
	q := r.URL.Query()
	return services.SearchFilters{
		Query:          strings.TrimSpace(q.Get("search")),
		IncludeDeleted: parseBool(q.Get("includeDeleted"), false),
		ActiveOnly:     parseBool(q.Get("activeOnly"), true),
	}
}

func (c *DivisionAPIController) List(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)
	q := r.URL.Query()

	filters := c.searchFilters(r)
	filters.Limit = c.conf.PageSize
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > c.conf.MaxPageSize {
			writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "limit must be between 1 and 100")
			return
		}
		filters.Limit = limit
	}
	if raw := q.Get("skip"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "skip must be non-negative")
			return
		}
		filters.Skip = skip
	}

	divisions, err := c.divisions.Search(r.Context(), filters)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}

	type listResponse struct {
		Items []services.Division `json:"items"`
		Skip  int                 `json:"skip"`
		Limit int                 `json:"limit"`
	}
	writeJSON(w, http.StatusOK, listResponse{Items: divisions, Skip: filters.Skip, Limit: filters.Limit})
}

func (c *DivisionAPIController) ListAll(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)

	divisions, err := c.divisions.Search(r.Context(), c.searchFilters(r))
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, divisions)
}

func (c *DivisionAPIController) Get(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)
	id, err := parseID(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "invalid id")
		return
	}

	div, err := c.divisions.GetByID(r.Context(), id, parseBool(r.URL.Query().Get("includeDeleted"), false))
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, div)
}

func (c *DivisionAPIController) GetByCode(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)

	div, err := c.divisions.GetByCode(r.Context(), mux.Vars(r)["code"], parseBool(r.URL.Query().Get("includeDeleted"), false))
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, div)
}

func (c *DivisionAPIController) Create(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)

	var req dtos.CreateDivisionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_BODY", "invalid json body")
		return
	}
	if err := req.Validate(); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_BODY", err.Error())
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	div, err := c.divisions.Create(r.Context(), services.CreateDivisionInput{
		Code:       req.Code,
		Name:       req.Name,
		ShortName:  req.ShortName,
		ParentID:   req.ParentID,
		SortOrder:  req.SortOrder,
		IsInternal: req.IsInternal,
		IsActive:   isActive,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, div)
}

func (c *DivisionAPIController) Update(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)
	id, err := parseID(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "invalid id")
		return
	}

	var req dtos.UpdateDivisionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_BODY", "invalid json body")
		return
	}
	if err := req.Validate(); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_BODY", err.Error())
		return
	}

	patch := services.UpdateDivisionPatch{
		Code:       req.Code,
		Name:       req.Name,
		SortOrder:  req.SortOrder,
		IsInternal: req.IsInternal,
		IsActive:   req.IsActive,
	}
	if req.ShortName.Set {
		patch.ShortName = &req.ShortName.Value
	}
	if req.ParentID.Set {
		patch.ParentID = &req.ParentID.Value
	}

	div, err := c.divisions.Update(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, div)
}

func (c *DivisionAPIController) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)
	id, err := parseID(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "invalid id")
		return
	}

	soft := parseBool(r.URL.Query().Get("softDelete"), true)
	if err := c.divisions.Delete(r.Context(), id, soft); err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *DivisionAPIController) Restore(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)
	id, err := parseID(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "invalid id")
		return
	}

	div, err := c.divisions.Restore(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, div)
}

func (c *DivisionAPIController) Children(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)
	id, err := parseID(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "invalid id")
		return
	}

	children, err := c.divisions.GetChildren(r.Context(), id, parseBool(r.URL.Query().Get("includeDeleted"), false))
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

func (c *DivisionAPIController) HierarchyTree(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)

	var rootID *int64
	if raw := r.URL.Query().Get("rootId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "rootId must be an integer")
			return
		}
		rootID = &id
	}

	tree, err := c.divisions.GetHierarchyTree(r.Context(), rootID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (c *DivisionAPIController) Move(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)
	id, err := parseID(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "invalid id")
		return
	}

	q := r.URL.Query()
	var newParentID *int64
	if raw := q.Get("newParentId"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "newParentId must be an integer")
			return
		}
		newParentID = &v
	}
	var newSortOrder *int
	if raw := q.Get("newSortOrder"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "newSortOrder must be an integer")
			return
		}
		newSortOrder = &v
	}

	div, err := c.divisions.Move(r.Context(), id, newParentID, newSortOrder)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, div)
}

func (c *DivisionAPIController) AvailableCodes(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)

	codes, err := c.divisions.AvailableCodes(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

func (c *DivisionAPIController) Suggest(w http.ResponseWriter, r *http.Request) {
	requestID := c.requestID(r)
	q := r.URL.Query()

	query := strings.TrimSpace(q.Get("q"))
	if len(query) < 2 {
		writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "q must be at least 2 characters")
		return
	}

	limit := 10
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > suggestMaxLimit {
			writeAPIError(w, http.StatusBadRequest, requestID, "DIVISION_INVALID_QUERY", "limit must be between 1 and 50")
			return
		}
		limit = v
	}

	divisions, err := c.divisions.Suggest(r.Context(), query, limit)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, divisions)
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		meta := make(map[string]any, len(svcErr.Meta)+1)
		for k, v := range svcErr.Meta {
			meta[k] = v
		}
		if requestID != "" {
			meta["request_id"] = requestID
		}
		writeJSON(w, svcErr.Status, dtos.APIError{Code: svcErr.Code, Message: svcErr.Message, Meta: meta})
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, "DIVISION_INTERNAL", err.Error())
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	meta := map[string]any{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	writeJSON(w, status, dtos.APIError{Code: code, Message: message, Meta: meta})
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
