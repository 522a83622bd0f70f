package query

// Ordering of a returned set of records by id
type Ordering uint

const (
	Ascending Ordering = iota
	Descending
)
