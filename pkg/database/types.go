package database

// SortField names a field to sort by and its direction.
type SortField struct {
	Field     string
	Ascending bool
}

// QueryOptions holds options for queries.
type QueryOptions struct {
	Projection map[string]bool
	Sort       []SortField
	Limit      int
	Skip       int
}
