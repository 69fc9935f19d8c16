package model

// User is the identity record behind clients, dispatchers and drivers.
// Only the fields needed for order enrichment are carried here.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Dispatcher links a dispatcher role to its user account and the area
// it operates in.
type Dispatcher struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	AreaID int64 `json:"area_id"`
}
