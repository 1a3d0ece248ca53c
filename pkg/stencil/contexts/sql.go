package contexts

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/stencila/stencila-sub009/pkg/stencil/errors"
)

// SQLContext executes directives against a SQL database. The DSN selects the
// driver by scheme: "sqlite:path" (the default when no scheme is given),
// "mysql://dsn", or "postgres://dsn".
//
// Protocol mapping: Execute runs statements, Text/Test/Match run single-value
// queries, Assign either stores a scalar or creates a view for a query,
// Begin/Next/End iterate the rows of a query with the current row bound as
// the loop item, and Enter/Exit bracket the subtree in a savepoint.
type SQLContext struct {
	db     *sql.DB
	driver string

	vars     map[string]any
	loops    []*sqlLoop
	subjects []string
	views    []string
	depth    int // savepoint nesting
}

type sqlLoop struct {
	name string
	rows []map[string]any
	pos  int
}

// OpenSQL opens a SQL context for the given DSN.
func OpenSQL(dsn string) (*SQLContext, error) {
	driver, source := splitDSN(dsn)
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("contexts: opening %s database: %w", driver, err)
	}
	// Savepoints, temporary views, and in-memory sqlite databases are all
	// per-connection state; the context pins a single connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("contexts: connecting to %s database: %w", driver, err)
	}
	return &SQLContext{db: db, driver: driver, vars: map[string]any{}}, nil
}

func splitDSN(dsn string) (driver, source string) {
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite:")
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", strings.TrimPrefix(dsn, "mysql://")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn
	}
	return "sqlite", dsn
}

// Close drops the views this context created and releases the database.
func (c *SQLContext) Close() error {
	for i := len(c.views) - 1; i >= 0; i-- {
		c.db.Exec("DROP VIEW IF EXISTS " + c.views[i])
	}
	c.views = nil
	return c.db.Close()
}

func (c *SQLContext) trackView(name string) {
	for _, v := range c.views {
		if v == name {
			return
		}
	}
	c.views = append(c.views, name)
}

// Accepts reports true for the "sql" backend only.
func (c *SQLContext) Accepts(lang string) bool {
	return strings.EqualFold(lang, "sql")
}

// Execute runs the code as a sequence of statements separated by semicolons.
func (c *SQLContext) Execute(code string) error {
	for _, stmt := range splitStatements(code) {
		if _, err := c.db.Exec(stmt); err != nil {
			return errors.New("expr", map[string]any{"Expression": stmt, "Reason": err.Error()})
		}
	}
	return nil
}

// Interact runs one query and returns its rows as compact JSON, for the
// interactive shell.
func (c *SQLContext) Interact(code string) (string, error) {
	rows, err := c.queryRows(code)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", errors.New("expr", map[string]any{"Expression": code, "Reason": err.Error()})
	}
	return string(b), nil
}

// Assign stores a scalar binding, or creates a view when expr is a query.
// Re-assigning a view name replaces its definition.
func (c *SQLContext) Assign(name, expr string) error {
	if isQuery(expr) {
		if _, err := c.db.Exec("DROP VIEW IF EXISTS " + name); err != nil {
			return errors.New("expr", map[string]any{"Expression": expr, "Reason": err.Error()})
		}
		if _, err := c.db.Exec(fmt.Sprintf("CREATE VIEW %s AS %s", name, expr)); err != nil {
			return errors.New("expr", map[string]any{"Expression": expr, "Reason": err.Error()})
		}
		c.trackView(name)
		return nil
	}
	v, err := c.scalar(expr)
	if err != nil {
		return err
	}
	c.vars[name] = v
	return nil
}

// Text evaluates expr to a single value and returns it as text.
func (c *SQLContext) Text(expr string) (string, error) {
	v, err := c.scalar(expr)
	if err != nil {
		return "", err
	}
	return formatSQL(v), nil
}

// Test evaluates expr and applies the shared truthiness rule.
func (c *SQLContext) Test(expr string) (bool, error) {
	text, err := c.Text(expr)
	if err != nil {
		return false, err
	}
	return Truthy(text), nil
}

// Subject pushes expr's evaluated text as the active switch subject.
func (c *SQLContext) Subject(expr string) error {
	text, err := c.Text(expr)
	if err != nil {
		return err
	}
	c.subjects = append(c.subjects, text)
	return nil
}

// Match compares expr's text to the active subject.
func (c *SQLContext) Match(expr string) (bool, error) {
	if len(c.subjects) == 0 {
		return false, errors.NewSimple(errors.ClassSubject, "no-subject", "no active switch subject")
	}
	text, err := c.Text(expr)
	if err != nil {
		return false, err
	}
	return text == c.subjects[len(c.subjects)-1], nil
}

// Unsubject pops the active switch subject.
func (c *SQLContext) Unsubject() error {
	if len(c.subjects) == 0 {
		return errors.NewSimple(errors.ClassSubject, "no-subject", "unsubject without an active subject")
	}
	c.subjects = c.subjects[:len(c.subjects)-1]
	return nil
}

// Begin runs expr as a query and opens a row cursor. Bare table or view names
// are queried whole.
func (c *SQLContext) Begin(item, expr string) (bool, error) {
	query := expr
	if !isQuery(expr) {
		query = "SELECT * FROM " + expr
	}
	rows, err := c.queryRows(query)
	if err != nil {
		return false, err
	}
	c.loops = append(c.loops, &sqlLoop{name: item, rows: rows})
	return len(rows) > 0, nil
}

// Next advances the innermost row cursor.
func (c *SQLContext) Next() (bool, error) {
	if len(c.loops) == 0 {
		return false, errors.NewSimple(errors.ClassExpression, "expr", "next without an active loop")
	}
	loop := c.loops[len(c.loops)-1]
	loop.pos++
	return loop.pos < len(loop.rows), nil
}

// End discards the innermost row cursor.
func (c *SQLContext) End() error {
	if len(c.loops) == 0 {
		return errors.NewSimple(errors.ClassExpression, "expr", "end without an active loop")
	}
	c.loops = c.loops[:len(c.loops)-1]
	return nil
}

// Enter opens a savepoint around the subtree. Named sub-scopes are not
// meaningful for a database, so a non-empty expr is unsupported.
func (c *SQLContext) Enter(expr string) error {
	if strings.TrimSpace(expr) != "" {
		return errors.New("not-supported", map[string]any{"Operation": "enter with a scope expression"})
	}
	c.depth++
	if _, err := c.db.Exec(fmt.Sprintf("SAVEPOINT stencil_%d", c.depth)); err != nil {
		c.depth--
		return errors.New("expr", map[string]any{"Expression": "enter", "Reason": err.Error()})
	}
	return nil
}

// Exit releases the innermost savepoint.
func (c *SQLContext) Exit() error {
	if c.depth == 0 {
		return errors.NewSimple(errors.ClassExpression, "expr", "exit without an enclosing frame")
	}
	_, err := c.db.Exec(fmt.Sprintf("RELEASE SAVEPOINT stencil_%d", c.depth))
	c.depth--
	if err != nil {
		return errors.New("expr", map[string]any{"Expression": "exit", "Reason": err.Error()})
	}
	return nil
}

// scalar resolves expr to a single value: loop item columns and assigned
// variables first, then a single-value query.
func (c *SQLContext) scalar(expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	// Innermost loop item: "item" or "item.column".
	for i := len(c.loops) - 1; i >= 0; i-- {
		loop := c.loops[i]
		if loop.pos >= len(loop.rows) {
			continue
		}
		row := loop.rows[loop.pos]
		if expr == loop.name {
			return row, nil
		}
		if col, found := strings.CutPrefix(expr, loop.name+"."); found {
			v, ok := row[col]
			if !ok {
				return nil, errors.New("expr", map[string]any{"Expression": expr, "Reason": "no column '" + col + "'"})
			}
			return v, nil
		}
	}
	if v, ok := c.vars[expr]; ok {
		return v, nil
	}
	query := expr
	if !isQuery(expr) {
		query = "SELECT " + expr
	}
	var v any
	if err := c.db.QueryRow(query).Scan(&v); err != nil {
		return nil, errors.New("expr", map[string]any{"Expression": expr, "Reason": err.Error()})
	}
	return v, nil
}

func (c *SQLContext) queryRows(query string) ([]map[string]any, error) {
	rows, err := c.db.Query(query)
	if err != nil {
		return nil, errors.New("expr", map[string]any{"Expression": query, "Reason": err.Error()})
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.New("expr", map[string]any{"Expression": query, "Reason": err.Error()})
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.New("expr", map[string]any{"Expression": query, "Reason": err.Error()})
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New("expr", map[string]any{"Expression": query, "Reason": err.Error()})
	}
	return out, nil
}

func isQuery(expr string) bool {
	head := strings.ToUpper(strings.TrimSpace(expr))
	return strings.HasPrefix(head, "SELECT ") || strings.HasPrefix(head, "WITH ")
}

func splitStatements(code string) []string {
	var out []string
	for _, stmt := range strings.Split(code, ";") {
		if strings.TrimSpace(stmt) != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func formatSQL(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	}
	if row, ok := v.(map[string]any); ok {
		b, err := json.Marshal(row)
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", v)
}
