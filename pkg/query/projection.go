// Package query builds parameterized SELECT statements from projection maps.
package query

import (
	"fmt"
	"strings"
)

// ProjectionMap maps view property names to qualified column references
// (alias.column) for one table. Only mapped names reach generated SQL.
type ProjectionMap struct {
	table   string
	alias   string
	columns map[string]string
	order   []string
}

// NewProjectionMap creates a ProjectionMap for schema.table under alias.
// An empty schema leaves the table unqualified.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	if schema != "" {
		table = schema + "." + table
	}
	return &ProjectionMap{
		table:   table,
		alias:   alias,
		columns: make(map[string]string),
	}
}

// Project maps column to viewName. Selected columns keep projection order,
// which is the order scan functions read them in.
func (p *ProjectionMap) Project(column, viewName string) *ProjectionMap {
	if _, exists := p.columns[viewName]; exists {
		panic(fmt.Sprintf("query: %s projected twice on %s", viewName, p.table))
	}
	qualified := p.alias + "." + column
	p.columns[viewName] = qualified
	p.order = append(p.order, qualified)
	return p
}

// Table returns the table reference with alias (schema.table alias).
func (p *ProjectionMap) Table() string {
	return p.table + " " + p.alias
}

// Column returns the qualified column for viewName. Unmapped names panic so a
// caller-supplied field can never be spliced into SQL.
func (p *ProjectionMap) Column(viewName string) string {
	col, ok := p.columns[viewName]
	if !ok {
		panic(fmt.Sprintf("query: unknown field %q on %s", viewName, p.table))
	}
	return col
}

// Has reports whether viewName is mapped.
func (p *ProjectionMap) Has(viewName string) bool {
	_, ok := p.columns[viewName]
	return ok
}

// Columns returns all mapped columns as a comma-separated string.
func (p *ProjectionMap) Columns() string {
	return strings.Join(p.order, ", ")
}
