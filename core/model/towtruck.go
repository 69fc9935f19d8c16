package model

// Tow truck availability states as stored in the durable record. The
// busy flag mirrored by the state cache is derived from this field.
const (
	TruckStatusAvailable = "available"
	TruckStatusBusy      = "busy"
)

// TowTruck is a service vehicle. Status and NodeID are the volatile
// fields shadowed by the vehicle state cache; NodeID is the last node
// the truck reported from and may be zero when no location has been
// recorded yet.
type TowTruck struct {
	ID             int64  `json:"id"`
	DriverID       int64  `json:"driver_id"`
	DriverUsername string `json:"driver_username"`
	Status         string `json:"status"`
	AreaID         int64  `json:"area_id"`
	NodeID         int64  `json:"node_id"`
}

// Busy reports whether the truck is bound to an active order.
func (t TowTruck) Busy() bool { return t.Status == TruckStatusBusy }
