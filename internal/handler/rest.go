package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/items-service/internal/logging"
	"github.com/vyrodovalexey/items-service/internal/model"
	"github.com/vyrodovalexey/items-service/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Response bodies.
const (
	msgCreated = "Item created successfully"
	msgUpdated = "Item updated successfully"
	msgDeleted = "Item deleted successfully"
)

// EventPublisher receives an event after every successful write.
type EventPublisher interface {
	Publish(event model.ItemEvent)
}

// RESTHandler handles the plain-text items API.
type RESTHandler struct {
	store  store.Store
	events EventPublisher
	logger *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance. events may be nil.
func NewRESTHandler(s store.Store, events EventPublisher, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{
		store:  s,
		events: events,
		logger: logger,
	}
}

// RegisterRoutes registers the items routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/items", h.ListItems).Methods(http.MethodGet)
	router.HandleFunc("/items", h.CreateItem).Methods(http.MethodPost)
	router.HandleFunc("/items", h.UpdateItem).Methods(http.MethodPut)
	router.HandleFunc("/items/{id}", h.DeleteItem).Methods(http.MethodDelete)
}

// ListItems handles GET /items requests.
func (h *RESTHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		h.handleStoreError(w, r, err, "list items")
		return
	}

	var body strings.Builder
	for _, item := range items {
		body.WriteString(item.Line())
	}

	h.writeText(w, http.StatusOK, body.String())
}

// CreateItem handles POST /items requests.
func (h *RESTHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var input model.CreateItemInput
	if err := h.decode(w, r, &input); err != nil {
		h.badRequest(w, r, "Invalid request body: "+err.Error())
		return
	}
	if err := input.Validate(); err != nil {
		h.badRequest(w, r, "Invalid request body: "+err.Error())
		return
	}

	if err := h.store.Create(r.Context(), *input.Name, *input.Description); err != nil {
		h.handleStoreError(w, r, err, "create item")
		return
	}

	h.publish(model.NewCreatedEvent(*input.Name, *input.Description))
	h.writeText(w, http.StatusOK, msgCreated)
}

// UpdateItem handles PUT /items requests. It answers 200 whether or not a
// row matched the id.
func (h *RESTHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var input model.UpdateItemInput
	if err := h.decode(w, r, &input); err != nil {
		h.badRequest(w, r, "Invalid request body: "+err.Error())
		return
	}
	if err := input.Validate(); err != nil {
		h.badRequest(w, r, "Invalid request body: "+err.Error())
		return
	}

	item := input.Item()
	if err := h.store.Update(r.Context(), item); err != nil {
		h.handleStoreError(w, r, err, "update item")
		return
	}

	h.publish(model.NewUpdatedEvent(item))
	h.writeText(w, http.StatusOK, msgUpdated)
}

// DeleteItem handles DELETE /items/{id} requests. It answers 200 whether or
// not a row matched the id.
func (h *RESTHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]

	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		h.badRequest(w, r, fmt.Sprintf("Invalid item id: %q", raw))
		return
	}

	if err := h.store.Delete(r.Context(), int32(id)); err != nil {
		h.handleStoreError(w, r, err, "delete item")
		return
	}

	h.publish(model.NewDeletedEvent(int32(id)))
	h.writeText(w, http.StatusOK, msgDeleted)
}

// errTrailingData rejects bodies with anything after the JSON object.
var errTrailingData = errors.New("unexpected data after JSON object")

// decode reads exactly one JSON value from the capped request body.
func (h *RESTHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}

	return nil
}

func (h *RESTHandler) publish(event model.ItemEvent) {
	if h.events != nil {
		h.events.Publish(event)
	}
}

// handleStoreError writes a 500 carrying the store's message.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	logging.WithContext(r.Context(), h.logger).Error("store operation failed",
		zap.String("operation", operation),
		zap.Error(err),
	)

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		h.writeText(w, http.StatusInternalServerError, "Database error: "+storeErr.Error())
		return
	}

	h.writeText(w, http.StatusInternalServerError, "Internal server error")
}

func (h *RESTHandler) badRequest(w http.ResponseWriter, r *http.Request, message string) {
	logging.WithContext(r.Context(), h.logger).Warn("invalid request", zap.String("reason", message))
	h.writeText(w, http.StatusBadRequest, message)
}

// writeText writes a plain-text response with the given status code.
func (h *RESTHandler) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		h.logger.Debug("failed to write response", zap.Error(err))
	}
}
