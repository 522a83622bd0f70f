package query

import "strconv"

// PaginateQuery appends id based paging to a query of the form
//
//	SELECT ... WHERE (...)
//
// The brackets around the conditions are required. For example, with an
// ascending cursor and a limit the result is
//
//	SELECT ... WHERE (...) AND id > $N ORDER BY id ASC LIMIT $N+1
func PaginateQuery(query string, opts []interface{}, cursor Cursor, limit uint64, direction Ordering) (string, []interface{}) {
	if len(cursor) > 0 {
		v := strconv.Itoa(len(opts) + 1)

		if direction == Ascending {
			query += " AND id > $" + v
		} else {
			query += " AND id < $" + v
		}

		opts = append(opts, cursor.ToUint64())
	}

	if direction == Ascending {
		query += " ORDER BY id ASC"
	} else {
		query += " ORDER BY id DESC"
	}

	if limit > 0 {
		query += " LIMIT $" + strconv.Itoa(len(opts)+1)
		opts = append(opts, limit)
	}

	return query, opts
}

// DefaultPaginationHandlerWithLimit applies paging options over ascending
// defaults, rejecting limits above limit
func DefaultPaginationHandlerWithLimit(limit uint64, opts ...Option) (*QueryOptions, error) {
	req := QueryOptions{
		Limit:     limit,
		SortBy:    Ascending,
		Supported: CanLimitResults | CanSortBy | CanQueryByCursor,
	}
	if err := req.Apply(opts...); err != nil {
		return nil, ErrQueryNotSupported
	}

	if req.Limit > limit {
		return nil, ErrQueryNotSupported
	}

	return &req, nil
}
