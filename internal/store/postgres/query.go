package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// listQuery appends time-window, ordering and pagination clauses to base.
// base must already carry a WHERE clause; conds and args hold any extra
// predicates with their positional arguments.
type listQuery struct {
	b    strings.Builder
	args []any
}

func newListQuery(base string) *listQuery {
	q := &listQuery{}
	q.b.WriteString(base)
	return q
}

func (q *listQuery) where(cond string, arg any) {
	q.args = append(q.args, arg)
	fmt.Fprintf(&q.b, " AND "+cond, len(q.args))
}

func (q *listQuery) window(column string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.where(column+" >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		q.where(column+" <= $%d", *opts.Until)
	}
}

func (q *listQuery) page(orderBy string, opts domain.ListOpts) {
	q.b.WriteString(" ORDER BY " + orderBy)
	if opts.Limit > 0 {
		q.args = append(q.args, opts.Limit)
		fmt.Fprintf(&q.b, " LIMIT $%d", len(q.args))
	}
	if opts.Offset > 0 {
		q.args = append(q.args, opts.Offset)
		fmt.Fprintf(&q.b, " OFFSET $%d", len(q.args))
	}
}

func (q *listQuery) String() string { return q.b.String() }
