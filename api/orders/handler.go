// Package orders exposes the order lifecycle over HTTP. Handlers are
// thin: decode, delegate, encode. Authentication and CORS belong to the
// outer router.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/towgrid/dispatch/core/model"
)

// Service is the slice of the dispatch coordinator the order endpoints
// need.
type Service interface {
	CreateOrder(ctx context.Context, clientID, nodeID int64, carValue float64) error
	Dispatch(ctx context.Context, orderID, dispatcherID, truckID int64, at time.Time) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	GetOrder(ctx context.Context, id int64) (model.OrderDetail, error)
	GetPaginatedOrders(ctx context.Context, q model.OrderQuery) ([]model.OrderDetail, error)
	GetCompletedOrders(ctx context.Context) ([]model.CompletedOrder, error)
}

type clientOrderRequest struct {
	ClientID int64   `json:"client_id"`
	NodeID   int64   `json:"node_id"`
	CarValue float64 `json:"car_value"`
}

// NewClientOrderHandler accepts a new client order via POST /api/order/client.
func NewClientOrderHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req clientOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := svc.CreateOrder(r.Context(), req.ClientID, req.NodeID, req.CarValue); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
}

type dispatcherOrderRequest struct {
	OrderID      int64 `json:"order_id"`
	DispatcherID int64 `json:"dispatcher_id"`
	TowTruckID   int64 `json:"tow_truck_id"`
}

// NewDispatcherOrderHandler commits a dispatch via POST /api/order/dispatcher.
func NewDispatcherOrderHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req dispatcherOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := svc.Dispatch(r.Context(), req.OrderID, req.DispatcherID, req.TowTruckID, time.Now().UTC()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

type statusRequest struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// NewStatusHandler moves an order between lifecycle states via
// POST /api/order/status.
func NewStatusHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req statusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		switch req.Status {
		case model.OrderStatusPending, model.OrderStatusDispatched, model.OrderStatusCompleted:
		default:
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		if err := svc.UpdateOrderStatus(r.Context(), req.OrderID, req.Status); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

// NewListHandler returns a page of enriched orders via GET /api/order/list.
// Supported query parameters: page, page_size, sort_by, sort_order,
// status, area_id.
func NewListHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := model.OrderQuery{Page: 0, PageSize: 20}
		if s := r.URL.Query().Get("page"); s != "" {
			if v, err := strconv.Atoi(s); err == nil {
				q.Page = v
			}
		}
		if s := r.URL.Query().Get("page_size"); s != "" {
			if v, err := strconv.Atoi(s); err == nil {
				q.PageSize = v
			}
		}
		if s := r.URL.Query().Get("sort_by"); s != "" {
			q.SortBy = &s
		}
		if s := r.URL.Query().Get("sort_order"); s != "" {
			q.SortOrder = &s
		}
		if s := r.URL.Query().Get("status"); s != "" {
			q.Status = &s
		}
		if s := r.URL.Query().Get("area_id"); s != "" {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil {
				q.AreaID = &v
			}
		}
		details, err := svc.GetPaginatedOrders(r.Context(), q)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, details)
	})
}

// NewCompletedHandler returns every completed order record via
// GET /api/order/completed.
func NewCompletedHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.GetCompletedOrders(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, records)
	})
}

// NewGetHandler returns one enriched order via GET /api/order/{id}.
func NewGetHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		detail, err := svc.GetOrder(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, detail)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
