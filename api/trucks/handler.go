// Package trucks exposes the tow truck fleet over HTTP: position
// reports, cache-backed reads and the nearest available lookup.
package trucks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/towgrid/dispatch/core/model"
)

// FleetService is the slice of the fleet service the truck endpoints
// need.
type FleetService interface {
	UpdateLocation(ctx context.Context, truckID, nodeID int64) error
	GetTowTruck(ctx context.Context, id int64) (model.TowTruck, error)
	ListTowTrucks(ctx context.Context, q model.TruckQuery) ([]model.TowTruck, error)
}

// NearestFinder ranks available trucks by road distance from a node.
type NearestFinder interface {
	AssignNearestVehicle(ctx context.Context, orderNodeID, areaID, searchLimit int64) (int64, bool, error)
}

type locationRequest struct {
	TowTruckID int64 `json:"tow_truck_id"`
	NodeID     int64 `json:"node_id"`
}

// NewLocationHandler records a position report via POST /api/tow_truck/location.
func NewLocationHandler(svc FleetService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req locationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := svc.UpdateLocation(r.Context(), req.TowTruckID, req.NodeID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

type nearestResponse struct {
	TowTruck *model.TowTruck `json:"tow_truck"`
}

// NewNearestHandler finds the closest available truck via
// GET /api/tow_truck/nearest?node_id=&area_id=&limit=. An exhausted
// search returns 200 with a null truck; only lookup failures are 5xx.
func NewNearestHandler(finder NearestFinder, svc FleetService, defaultLimit int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nodeID, err := strconv.ParseInt(r.URL.Query().Get("node_id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid node_id", http.StatusBadRequest)
			return
		}
		areaID, err := strconv.ParseInt(r.URL.Query().Get("area_id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid area_id", http.StatusBadRequest)
			return
		}
		limit := defaultLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil && v > 0 {
				limit = v
			}
		}

		id, found, err := finder.AssignNearestVehicle(r.Context(), nodeID, areaID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if !found {
			writeJSON(w, nearestResponse{})
			return
		}
		truck, err := svc.GetTowTruck(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, nearestResponse{TowTruck: &truck})
	})
}

// NewListHandler returns a page of trucks via GET /api/tow_truck/list.
// Supported query parameters: page, page_size, status, area_id.
func NewListHandler(svc FleetService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := model.TruckQuery{Page: 0, PageSize: 20}
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
		if s := r.URL.Query().Get("status"); s != "" {
			q.Status = &s
		}
		if s := r.URL.Query().Get("area_id"); s != "" {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil {
				q.AreaID = &v
			}
		}
		trucks, err := svc.ListTowTrucks(r.Context(), q)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, trucks)
	})
}

// NewGetHandler returns one truck via GET /api/tow_truck/{id}.
func NewGetHandler(svc FleetService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid truck id", http.StatusBadRequest)
			return
		}
		truck, err := svc.GetTowTruck(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, truck)
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
