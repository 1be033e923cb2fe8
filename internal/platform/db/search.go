package db

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hms/hms/pkg/validation"
)

// FilterType selects how a query parameter value is parsed and compared.
type FilterType int

const (
	FilterExact FilterType = iota // text equality
	FilterDate                    // YYYY-MM-DD, supports __gte, __lte, __gt, __lt
	FilterInt                     // integer, supports the same lookups as FilterDate
	FilterBool                    // true/false/1/0
	FilterUUID                    // uuid equality
	FilterIExact                  // case-insensitive text equality
)

// Filter maps a query parameter onto a SQL column.
type Filter struct {
	Column string
	Type   FilterType
}

var lookupOps = map[string]string{
	"gte": ">=",
	"lte": "<=",
	"gt":  ">",
	"lt":  "<",
}

// SearchQuery builds the WHERE / ORDER BY / LIMIT parts of a list query.
// from may contain joins; cols is the select list.
type SearchQuery struct {
	from    string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewSearchQuery creates a new SearchQuery for the given relation and columns.
func NewSearchQuery(from, cols string) *SearchQuery {
	return &SearchQuery{
		from: from,
		cols: cols,
		idx:  1,
	}
}

// Idx returns the next available parameter index.
func (q *SearchQuery) Idx() int { return q.idx }

// Add appends a raw WHERE clause fragment (without leading "AND"). The
// fragment must number its placeholders starting at Idx().
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// Eq adds "column = value".
func (q *SearchQuery) Eq(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// Search adds a case-insensitive substring match of term against any of the
// given columns. Blank terms are ignored.
func (q *SearchQuery) Search(term string, columns ...string) {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return
	}
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", c, q.idx)
	}
	q.Add("("+strings.Join(parts, " OR ")+")", "%"+escapeLike(term)+"%")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ApplyFilters adds a clause for every query parameter that names a known
// filter. Parameters may carry a lookup suffix ("appointment_date__gte").
// Unparseable values are reported per parameter.
func (q *SearchQuery) ApplyFilters(params url.Values, filters map[string]Filter) error {
	errs := validation.Errors{}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params.Get(key)
		if value == "" {
			continue
		}
		name, op := key, "="
		if i := strings.Index(key, "__"); i > 0 {
			sqlOp, ok := lookupOps[key[i+2:]]
			if !ok {
				continue
			}
			name, op = key[:i], sqlOp
		}
		f, ok := filters[name]
		if !ok {
			continue
		}
		if op != "=" && f.Type != FilterDate && f.Type != FilterInt {
			continue
		}

		arg, err := parseFilterValue(f.Type, value)
		if err != nil {
			errs.Add(key, err.Error())
			continue
		}
		if f.Type == FilterIExact {
			q.Add(fmt.Sprintf("LOWER(%s) = LOWER($%d)", f.Column, q.idx), arg)
			continue
		}
		q.Add(fmt.Sprintf("%s %s $%d", f.Column, op, q.idx), arg)
	}
	return errs.Err()
}

func parseFilterValue(t FilterType, value string) (interface{}, error) {
	switch t {
	case FilterDate:
		d, err := civil.ParseDate(value)
		if err != nil {
			return nil, fmt.Errorf("Enter a valid date.")
		}
		return DateValue(d), nil
	case FilterInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("Enter a whole number.")
		}
		return n, nil
	case FilterBool:
		switch strings.ToLower(value) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, fmt.Errorf("Select a valid choice. %s is not one of the available choices.", value)
	case FilterUUID:
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("Enter a valid UUID.")
		}
		return id, nil
	}
	return value, nil
}

// ApplyOrdering sets ORDER BY from a comma-separated ordering parameter
// ("-appointment_date,doctor"). Only fields present in the whitelist are used;
// when none match, defaultOrder applies.
func (q *SearchQuery) ApplyOrdering(param, defaultOrder string, fields map[string]string) {
	var parts []string
	for _, field := range strings.Split(param, ",") {
		field = strings.TrimSpace(field)
		desc := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		col, ok := fields[field]
		if !ok {
			continue
		}
		if desc {
			parts = append(parts, col+" DESC")
		} else {
			parts = append(parts, col+" ASC")
		}
	}
	if len(parts) == 0 {
		q.orderBy = defaultOrder
		return
	}
	q.orderBy = strings.Join(parts, ", ")
}

// CountSQL returns the count query SQL.
func (q *SearchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.from, q.where)
}

// CountArgs returns the arguments for the count query.
func (q *SearchQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *SearchQuery) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.from, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the arguments for the data query (search args + limit + offset).
func (q *SearchQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}
