package listquery

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Reserved query keys. They control paging, ordering and projection and never
// become filter predicates.
const (
	KeyPage   = "page"
	KeySort   = "sort"
	KeyLimit  = "limit"
	KeyFields = "fields"
)

var reservedKeys = map[string]struct{}{
	KeyPage:   {},
	KeySort:   {},
	KeyLimit:  {},
	KeyFields: {},
}

// Operator is a filter comparison.
type Operator string

const (
	OpEq  Operator = "eq"
	OpGte Operator = "gte"
	OpGt  Operator = "gt"
	OpLte Operator = "lte"
	OpLt  Operator = "lt"
)

// Comparison reports whether op is an ordering comparison rather than equality.
func (op Operator) Comparison() bool {
	switch op {
	case OpGte, OpGt, OpLte, OpLt:
		return true
	}
	return false
}

// Predicate constrains one field. Equality predicates may carry several values,
// meaning "any of"; comparison predicates carry exactly one.
type Predicate struct {
	Field  string
	Op     Operator
	Values []string
}

// SortKey is one ordering term.
type SortKey struct {
	Field string
	Desc  bool
}

// Projection lists the fields to return. Exclude flips it into a deny list.
type Projection struct {
	Fields  []string
	Exclude bool
}

// Pagination is a 1-based page window.
type Pagination struct {
	Page  int
	Limit int
}

// Offset is the number of records skipped before the page starts.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Accepted date layouts for comparison values.
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseFilter turns the non-reserved keys of values into predicates. Keys use
// the bracket convention for operators: price[gte]=100. Predicates are returned
// in key order; predicates sharing a field are conjunctive.
func ParseFilter(values url.Values) ([]Predicate, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	predicates := make([]Predicate, 0, len(keys))
	for _, key := range keys {
		if _, ok := reservedKeys[key]; ok {
			continue
		}
		field, op, err := splitKey(key)
		if err != nil {
			return nil, err
		}
		if _, ok := reservedKeys[field]; ok {
			continue
		}

		vals := nonEmpty(values[key])
		if len(vals) == 0 {
			continue
		}

		if !op.Comparison() {
			predicates = append(predicates, Predicate{Field: field, Op: OpEq, Values: vals})
			continue
		}
		for _, v := range vals {
			if !isOrderable(v) {
				return nil, requestErrorf(key, "value %q must be a number or a date", v)
			}
			predicates = append(predicates, Predicate{Field: field, Op: op, Values: []string{v}})
		}
	}
	return predicates, nil
}

// ParseSort reads the comma-separated sort parameter. A leading "-" sorts
// descending. It returns nil when no sort was requested.
func ParseSort(values url.Values) ([]SortKey, error) {
	tokens, err := commaTokens(values, KeySort)
	if err != nil || len(tokens) == 0 {
		return nil, err
	}

	keys := make([]SortKey, 0, len(tokens))
	for _, tok := range tokens {
		desc := strings.HasPrefix(tok, "-")
		field := strings.TrimPrefix(tok, "-")
		if field == "" {
			return nil, requestErrorf(KeySort, "empty sort field")
		}
		keys = append(keys, SortKey{Field: field, Desc: desc})
	}
	return keys, nil
}

// ParseFields reads the comma-separated fields parameter. Either every token is
// prefixed with "-" (exclusion) or none is.
func ParseFields(values url.Values) (Projection, error) {
	tokens, err := commaTokens(values, KeyFields)
	if err != nil || len(tokens) == 0 {
		return Projection{}, err
	}

	var proj Projection
	excluded := 0
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "-") {
			excluded++
			tok = strings.TrimPrefix(tok, "-")
		}
		if tok == "" {
			return Projection{}, requestErrorf(KeyFields, "empty field name")
		}
		proj.Fields = append(proj.Fields, tok)
	}
	switch excluded {
	case 0:
	case len(tokens):
		proj.Exclude = true
	default:
		return Projection{}, requestErrorf(KeyFields, "cannot mix included and excluded fields")
	}
	return proj, nil
}

// ParsePagination reads page and limit. Missing values fall back to page 1 and
// defaultLimit; a limit above maxLimit is clamped when maxLimit is positive.
func ParsePagination(values url.Values, defaultLimit, maxLimit int) (Pagination, error) {
	p := Pagination{Page: 1, Limit: defaultLimit}

	if raw := lastValue(values, KeyPage); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Pagination{}, requestErrorf(KeyPage, "must be a positive integer")
		}
		p.Page = page
	}
	if raw := lastValue(values, KeyLimit); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Pagination{}, requestErrorf(KeyLimit, "must be a positive integer")
		}
		p.Limit = limit
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Limit > 0 && p.Page-1 > math.MaxInt/p.Limit {
		return Pagination{}, requestErrorf(KeyPage, "is out of range")
	}
	return p, nil
}

func splitKey(key string) (string, Operator, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 || !strings.HasSuffix(key, "]") {
		return strings.TrimSpace(key), OpEq, nil
	}
	field := strings.TrimSpace(key[:open])
	if field == "" {
		return "", "", requestErrorf(key, "missing field name")
	}
	switch op := Operator(key[open+1 : len(key)-1]); op {
	case OpGte, OpGt, OpLte, OpLt:
		return field, op, nil
	default:
		return field, OpEq, nil
	}
}

func commaTokens(values url.Values, key string) ([]string, error) {
	raw := lastValue(values, key)
	if raw == "" {
		return nil, nil
	}
	var tokens []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tokens = append(tokens, part)
		}
	}
	if len(tokens) == 0 {
		return nil, requestErrorf(key, "no fields given")
	}
	return tokens, nil
}

// lastValue mirrors parameter-pollution protection: the last occurrence wins.
func lastValue(values url.Values, key string) string {
	vals := values[key]
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[len(vals)-1])
}

func nonEmpty(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func isOrderable(v string) bool {
	if _, err := parseNumber(v); err == nil {
		return true
	}
	_, err := parseDate(v)
	return err == nil
}

func parseNumber(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrSyntax
	}
	return f, nil
}

func parseDate(v string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
