package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wesm/mailquery/internal/audit"
	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/query"
	"github.com/wesm/mailquery/internal/scheduler"
	"github.com/wesm/mailquery/internal/search"
)

// maxPageSize caps page_size on search requests.
const maxPageSize = 100

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	RequestID string            `json:"request_id"`
	Criteria  string            `json:"criteria"`
	Messages  []mailstore.Email `json:"messages"`
	Page      query.PageInfo    `json:"page"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool                  `json:"running"`
	Jobs    []scheduler.JobStatus `json:"jobs"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// statusFor maps an engine error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, mailstore.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, governor.ErrResourceExceeded):
		return http.StatusRequestEntityTooLarge, "resource_exceeded"
	case errors.Is(err, governor.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, governor.ErrConnection):
		return http.StatusServiceUnavailable, "connection_error"
	case errors.Is(err, governor.ErrCancelled):
		return http.StatusServiceUnavailable, "cancelled"
	case governor.Classify(err) == governor.CategoryUser:
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeEngineError writes err with its mapped status and a user hint.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, code, "Internal error")
		return
	}
	resp := ErrorResponse{Error: code, Message: err.Error()}
	if status != http.StatusNotFound {
		resp.Suggestion = governor.Suggestion(err)
	}
	writeJSON(w, status, resp)
}

// handleHealth reports mail store connection state. It answers 503 once
// the store has been seen disconnected.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	info := s.health.Info()
	status := http.StatusOK
	if info.Status == governor.StatusDisconnected {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, info)
}

// handleFolders lists every folder.
func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := guarded(r.Context(), s, governor.OpFolderRead, s.engine.Folders)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

// handleGetMessage returns a single message by ID.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "Message ID is malformed")
		return
	}

	msg, err := guarded(r.Context(), s, governor.OpDefault, func(ctx context.Context) (*mailstore.Email, error) {
		return s.engine.Email(ctx, id)
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// handleSearch runs a filtered, sorted, paged search. Criteria come from
// the q query string plus one parameter per field; explicit parameters
// override operators in q.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := s.searchRequest(r.URL.Query())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	start := time.Now()
	res, err := guarded(r.Context(), s, governor.OpSearch, func(ctx context.Context) (*query.Result, error) {
		return s.engine.Run(ctx, req)
	})

	count := 0
	if res != nil {
		count = res.Page.TotalItems
	}
	ctx := context.WithoutCancel(r.Context())
	s.audit.Record(ctx, audit.Search{
		Operation:   "search",
		User:        "api:" + clientIP(r),
		Criteria:    req.Criteria,
		ResultCount: count,
		Err:         err,
	}, audit.Performance{
		Operation:   "search",
		Duration:    time.Since(start),
		ResultCount: count,
	})

	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		RequestID: chimw.GetReqID(r.Context()),
		Criteria:  req.Criteria.String(),
		Messages:  res.Emails,
		Page:      res.Page,
	})
}

// searchRequest builds a query.Request from URL parameters.
func (s *Server) searchRequest(params url.Values) (query.Request, error) {
	c := &search.Criteria{}
	if q := params.Get("q"); q != "" {
		parsed, err := s.parser.Parse(q)
		if err != nil {
			return query.Request{}, err
		}
		c = parsed
	}
	for _, field := range search.Fields {
		if v := params.Get(field); v != "" {
			if err := s.parser.Set(c, field, v); err != nil {
				return query.Request{}, err
			}
		}
	}

	field, err := query.ParseSortField(params.Get("sort"))
	if err != nil {
		return query.Request{}, &paramError{name: "sort", err: err}
	}
	order, err := query.ParseSortOrder(params.Get("order"))
	if err != nil {
		return query.Request{}, &paramError{name: "order", err: err}
	}

	page := 1
	if v := params.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return query.Request{}, &paramError{name: "page", err: errors.New("must be a positive integer")}
		}
	}
	pageSize := s.cfg.Display.PageSize
	if v := params.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return query.Request{}, &paramError{name: "page_size", err: errors.New("must be between 1 and 100")}
		}
		pageSize = n
	}

	return query.Request{
		Criteria:  c,
		SortField: field,
		SortOrder: order,
		Page:      page,
		PageSize:  pageSize,
	}, nil
}

// paramError reports an invalid URL parameter.
type paramError struct {
	name string
	err  error
}

func (e *paramError) Error() string   { return "invalid " + e.name + ": " + e.err.Error() }
func (e *paramError) Unwrap() error   { return e.err }
func (e *paramError) UserError() bool { return true }

// handleSchedulerStatus returns the scheduler status.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatusResponse{Jobs: []scheduler.JobStatus{}})
		return
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.scheduler.IsRunning(),
		Jobs:    s.scheduler.Status(),
	})
}

// guarded runs fn under the operation's timeout and the connection retry
// policy.
func guarded[T any](ctx context.Context, s *Server, op string, fn func(context.Context) (T, error)) (T, error) {
	policy := s.timeouts.Policy(op)
	return governor.Retry(ctx, s.retry, func(ctx context.Context) (T, error) {
		return governor.RunValue(ctx, policy, fn)
	})
}
