package model

// OrderQuery selects a page of orders. Nil filters are ignored.
// PageSize -1 disables the limit and returns every matching row.
type OrderQuery struct {
	Page      int
	PageSize  int
	SortBy    *string
	SortOrder *string
	Status    *string
	AreaID    *int64
}

// TruckQuery selects a page of tow trucks. Nil filters are ignored.
// PageSize -1 disables the limit.
type TruckQuery struct {
	Page     int
	PageSize int
	Status   *string
	AreaID   *int64
}
