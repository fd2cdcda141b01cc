// Package listquery translates list request parameters into an unexecuted
// goqu select. Filter, Sort, LimitFields and Paginate may be chained in any
// order; the first failure sticks and is returned by Dataset.
package listquery

import (
	"net/url"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// Options tunes pagination.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultOptions matches the public API defaults.
var DefaultOptions = Options{DefaultLimit: 100, MaxLimit: 1000}

// Features configures a select dataset from a list request.
type Features struct {
	ds     *goqu.SelectDataset
	schema *Schema
	values url.Values
	opts   Options
	err    error
}

// New starts from base, which may already carry scoping conditions, and
// projects every schema field until LimitFields narrows it.
func New(base *goqu.SelectDataset, schema *Schema, values url.Values, opts Options) *Features {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultOptions.DefaultLimit
	}
	f := &Features{schema: schema, values: values, opts: opts}
	f.ds = base.Select(f.columns(schema.Fields())...)
	return f
}

// Filter adds one WHERE condition per predicate.
func (f *Features) Filter() *Features {
	if f.err != nil {
		return f
	}
	predicates, err := ParseFilter(f.values)
	if err != nil {
		f.err = err
		return f
	}

	exprs := make([]exp.Expression, 0, len(predicates))
	for _, p := range predicates {
		expr, err := f.predicate(p)
		if err != nil {
			f.err = err
			return f
		}
		exprs = append(exprs, expr)
	}
	if len(exprs) > 0 {
		f.ds = f.ds.Where(exprs...)
	}
	return f
}

// Sort orders by the requested keys, or newest first when none were given.
// The id field always breaks remaining ties so pages never overlap.
func (f *Features) Sort() *Features {
	if f.err != nil {
		return f
	}
	keys, err := ParseSort(f.values)
	if err != nil {
		f.err = err
		return f
	}
	if len(keys) == 0 {
		keys = []SortKey{{Field: f.schema.createdAt, Desc: true}}
	}

	order := make([]exp.OrderedExpression, 0, len(keys)+1)
	hasID := false
	for _, k := range keys {
		field, err := f.schema.field(KeySort, k.Field)
		if err != nil {
			f.err = err
			return f
		}
		if field.Kind == KindList {
			f.err = requestErrorf(KeySort, "field %q cannot be sorted", field.Name)
			return f
		}
		hasID = hasID || field.Name == f.schema.idField
		col := goqu.C(field.Column)
		if k.Desc {
			order = append(order, col.Desc())
		} else {
			order = append(order, col.Asc())
		}
	}
	if !hasID {
		if id, ok := f.schema.Lookup(f.schema.idField); ok {
			order = append(order, goqu.C(id.Column).Asc())
		}
	}
	f.ds = f.ds.Order(order...)
	return f
}

// LimitFields narrows the projection. The id field is always returned.
func (f *Features) LimitFields() *Features {
	if f.err != nil {
		return f
	}
	proj, err := ParseFields(f.values)
	if err != nil {
		f.err = err
		return f
	}
	if len(proj.Fields) == 0 {
		return f
	}

	named := make(map[string]struct{}, len(proj.Fields))
	for _, name := range proj.Fields {
		if _, err := f.schema.field(KeyFields, name); err != nil {
			f.err = err
			return f
		}
		named[name] = struct{}{}
	}

	selected := make([]Field, 0, len(f.schema.Fields()))
	for _, field := range f.schema.Fields() {
		_, listed := named[field.Name]
		switch {
		case field.Name == f.schema.idField:
			selected = append(selected, field)
		case listed != proj.Exclude:
			selected = append(selected, field)
		}
	}
	f.ds = f.ds.Select(f.columns(selected)...)
	return f
}

// Paginate skips (page-1)*limit rows and takes limit.
func (f *Features) Paginate() *Features {
	if f.err != nil {
		return f
	}
	p, err := ParsePagination(f.values, f.opts.DefaultLimit, f.opts.MaxLimit)
	if err != nil {
		f.err = err
		return f
	}
	f.ds = f.ds.Offset(uint(p.Offset())).Limit(uint(p.Limit))
	return f
}

// Dataset returns the configured query or the first error met while building it.
func (f *Features) Dataset() (*goqu.SelectDataset, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ds, nil
}

// Apply runs every step in the conventional order.
func (f *Features) Apply() (*goqu.SelectDataset, error) {
	return f.Filter().Sort().LimitFields().Paginate().Dataset()
}

func (f *Features) predicate(p Predicate) (exp.Expression, error) {
	param := p.Field
	if p.Op != OpEq {
		param = p.Field + "[" + string(p.Op) + "]"
	}
	field, err := f.schema.field(param, p.Field)
	if err != nil {
		return nil, err
	}
	if field.Kind == KindList {
		return nil, requestErrorf(param, "field cannot be filtered")
	}
	if p.Op.Comparison() && field.Kind != KindNumber && field.Kind != KindInteger && field.Kind != KindTime {
		return nil, requestErrorf(param, "operator %s is not supported on this field", p.Op)
	}

	vals := make([]interface{}, 0, len(p.Values))
	for _, raw := range p.Values {
		v, err := coerce(field, param, raw)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}

	col := goqu.C(field.Column)
	switch p.Op {
	case OpGte:
		return col.Gte(vals[0]), nil
	case OpGt:
		return col.Gt(vals[0]), nil
	case OpLte:
		return col.Lte(vals[0]), nil
	case OpLt:
		return col.Lt(vals[0]), nil
	}
	if len(vals) == 1 {
		return col.Eq(vals[0]), nil
	}
	return col.In(vals...), nil
}

func (f *Features) columns(fields []Field) []interface{} {
	cols := make([]interface{}, 0, len(fields))
	for _, field := range fields {
		cols = append(cols, goqu.C(field.Column).As(field.Name))
	}
	return cols
}
