// Package query builds parameterized PostgreSQL statements from view
// property names, so repositories and sort parameters never handle raw
// column names.
package query

import "strings"

// ProjectionMap maps view property names to qualified columns of a base
// table and any joined tables.
type ProjectionMap struct {
	table   string
	joins   []string
	columns map[string]string
	order   []string
	alias   string
}

// NewProjectionMap starts a projection over schema.table aliased as alias.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	return &ProjectionMap{
		table:   schema + "." + table + " " + alias,
		columns: make(map[string]string),
		alias:   alias,
	}
}

// Join adds a joined table. Later Project calls qualify columns with its alias.
func (p *ProjectionMap) Join(schema, table, alias, kind, on string) *ProjectionMap {
	p.joins = append(p.joins, kind+" "+schema+"."+table+" "+alias+" ON "+on)
	p.alias = alias
	return p
}

// Project exposes column under viewName.
func (p *ProjectionMap) Project(column, viewName string) *ProjectionMap {
	qualified := p.alias + "." + column
	p.columns[viewName] = qualified
	p.order = append(p.order, qualified)
	return p
}

// Table returns "schema.table alias" for the base table.
func (p *ProjectionMap) Table() string {
	return p.table
}

// From returns the base table followed by its joins.
func (p *ProjectionMap) From() string {
	return strings.Join(append([]string{p.table}, p.joins...), " ")
}

// Column resolves a view property name. Unknown names pass through.
func (p *ProjectionMap) Column(viewName string) string {
	if col, ok := p.columns[viewName]; ok {
		return col
	}
	return viewName
}

// Columns returns the projected columns in declaration order.
func (p *ProjectionMap) Columns() string {
	return strings.Join(p.order, ", ")
}
