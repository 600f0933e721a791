package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/mirrorhq/opportunity-engine/internal/detector"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/proxy"
	"github.com/mirrorhq/opportunity-engine/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

const maxBodyBytes = 1 << 20

// Engine is the detection service behind the HTTP API
type Engine interface {
	DetectOpportunities(ctx context.Context, brand models.Brand) (*models.DetectionReport, error)
	List(ctx context.Context, brandID string, statuses []models.Status, limit int) ([]models.OpportunityInsight, error)
	KeywordOpportunities(ctx context.Context, brand models.Brand) ([]models.KeywordOpportunity, error)
	UpdateStatus(ctx context.Context, id string, status models.Status) (*models.OpportunityInsight, error)
	RunWatchlist(ctx context.Context) error
	Reports(ctx context.Context, brandID string) ([]string, error)
	Report(ctx context.Context, brandID, name string) (*models.DetectionReport, error)
	DeleteReport(ctx context.Context, brandID, name string) error
	GetMetrics() string
}

// Dispatcher routes provider function calls
type Dispatcher interface {
	Dispatch(ctx context.Context, providerName string, body []byte) (int, proxy.Envelope)
}

// Handler serves the engine's HTTP endpoints
type Handler struct {
	engine     Engine
	dispatcher Dispatcher
	watchlist  map[string]models.Brand
	prometheus http.Handler
	// background runs fire-and-forget work such as a manual trigger
	background func(func())
}

// NewHandler creates the API handler. Brands in the watchlist can be
// referenced by ID alone; promHandler may be nil.
func NewHandler(engine Engine, dispatcher Dispatcher, watchlist []models.Brand, promHandler http.Handler) *Handler {
	brands := make(map[string]models.Brand, len(watchlist))
	for _, b := range watchlist {
		brands[b.ID] = b
	}
	return &Handler{
		engine:     engine,
		dispatcher: dispatcher,
		watchlist:  brands,
		prometheus: promHandler,
		background: func(fn func()) { go fn() },
	}
}

// Router registers every endpoint on a gorilla/mux router
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.health).Methods("GET")
	router.HandleFunc("/metrics", h.metrics).Methods("GET")
	if h.prometheus != nil {
		router.Handle("/metrics/prometheus", h.prometheus).Methods("GET")
	}
	router.HandleFunc("/trigger", h.trigger).Methods("POST")

	router.HandleFunc("/functions/{provider}", h.function).Methods("POST")

	router.HandleFunc("/brands/{brandID}/opportunities/detect", h.detect).Methods("POST")
	router.HandleFunc("/brands/{brandID}/opportunities", h.list).Methods("GET")
	router.HandleFunc("/brands/{brandID}/keyword-opportunities", h.keywords).Methods("POST")
	router.HandleFunc("/brands/{brandID}/reports", h.reports).Methods("GET")
	router.HandleFunc("/brands/{brandID}/reports/{name}", h.report).Methods("GET")
	router.HandleFunc("/brands/{brandID}/reports/{name}", h.deleteReport).Methods("DELETE")
	router.HandleFunc("/opportunities/{id}/status", h.updateStatus).Methods("PATCH")

	return router
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.engine.GetMetrics()))
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	h.background(func() {
		if err := h.engine.RunWatchlist(context.Background()); err != nil {
			logrus.Errorf("Manual detection trigger failed: %v", err)
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Detection triggered successfully"})
}

func (h *Handler) function(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, proxy.Envelope{Error: "failed to read request body"})
		return
	}

	status, envelope := h.dispatcher.Dispatch(r.Context(), mux.Vars(r)["provider"], body)
	writeJSON(w, status, envelope)
}

func (h *Handler) detect(w http.ResponseWriter, r *http.Request) {
	brand, err := h.resolveBrand(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := h.engine.DetectOpportunities(r.Context(), brand)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var statuses []models.Status
	if raw := query.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, ok := models.ParseStatus(strings.TrimSpace(part))
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid status: %s", part))
				return
			}
			statuses = append(statuses, status)
		}
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := cast.ToIntE(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", raw))
			return
		}
		limit = n
	}

	insights, err := h.engine.List(r.Context(), mux.Vars(r)["brandID"], statuses, limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if insights == nil {
		insights = []models.OpportunityInsight{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": insights, "count": len(insights)})
}

func (h *Handler) keywords(w http.ResponseWriter, r *http.Request) {
	brand, err := h.resolveBrand(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opportunities, err := h.engine.KeywordOpportunities(r.Context(), brand)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			// rankings come from upstream
			status = proxy.StatusFor(err)
		}
		writeError(w, status, err)
		return
	}
	if opportunities == nil {
		opportunities = []models.KeywordOpportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opportunities, "count": len(opportunities)})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	status, ok := models.ParseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid status: %s", req.Status))
		return
	}

	insight, err := h.engine.UpdateStatus(r.Context(), mux.Vars(r)["id"], status)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

func (h *Handler) reports(w http.ResponseWriter, r *http.Request) {
	brandID := mux.Vars(r)["brandID"]
	names, err := h.engine.Reports(r.Context(), brandID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"brandId": brandID, "reports": names, "count": len(names)})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	report, err := h.engine.Report(r.Context(), vars["brandID"], vars["name"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) deleteReport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.engine.DeleteReport(r.Context(), vars["brandID"], vars["name"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveBrand reads the brand from the body, falling back to the watchlist
// entry for the path ID when the body is empty
func (h *Handler) resolveBrand(r *http.Request) (models.Brand, error) {
	brandID := mux.Vars(r)["brandID"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return models.Brand{}, fmt.Errorf("failed to read request body: %w", err)
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		brand, ok := h.watchlist[brandID]
		if !ok {
			return models.Brand{}, fmt.Errorf("brand %s is not on the watchlist; send it in the request body", brandID)
		}
		return brand, nil
	}

	var brand models.Brand
	if err := json.Unmarshal(body, &brand); err != nil {
		return models.Brand{}, fmt.Errorf("invalid brand: %w", err)
	}
	if brand.ID == "" {
		brand.ID = brandID
	}
	if brand.ID != brandID {
		return models.Brand{}, fmt.Errorf("brand id %s does not match path %s", brand.ID, brandID)
	}
	return brand, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, detector.ErrInvalidBrand), errors.Is(err, detector.ErrInvalidReport):
		return http.StatusBadRequest
	case errors.Is(err, detector.ErrNoArchive):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to write response: %v", err)
	}
}
