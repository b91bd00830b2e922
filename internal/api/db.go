package api

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"unicode"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-atlas/internal/service"
)

// MaxQueryRows caps the rows returned by /api/v1/query.
const MaxQueryRows = 10000

// readStatements are the leading keywords /api/v1/query accepts.
var readStatements = []string{"SELECT", "WITH", "SHOW", "DESCRIBE"}

// writeKeywords may not appear anywhere in a WITH query.
var writeKeywords = []string{"INSERT", "UPDATE", "DELETE", "MERGE"}

// DBHandler serves the DuckDB observations read model.
type DBHandler struct {
	db  *sql.DB
	svc *service.Atlas
}

// NewDBHandler creates a new database handler. The read model is filled
// when svc finishes loading, so queries wait for the ready state.
func NewDBHandler(db *sql.DB, svc *service.Atlas) *DBHandler {
	return &DBHandler{db: db, svc: svc}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("query"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("query"))
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []string `json:"tables" doc:"List of table names"`
	}
}

// ListTables returns all DuckDB tables.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}

	rows, err := h.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	out := &TablesOutput{}
	out.Body.Tables = []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			out.Body.Tables = append(out.Body.Tables, name)
		}
	}
	return out, nil
}

// QueryInput is the input for SQL queries.
type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"Read-only SQL query (SELECT, WITH, SHOW or DESCRIBE)" example:"SELECT class, quad, species FROM richness ORDER BY species DESC"`
	}
}

// QueryOutput is the response for SQL queries.
type QueryOutput struct {
	Body struct {
		Columns   []string         `json:"columns" doc:"Column names"`
		Rows      []map[string]any `json:"rows" doc:"Query results"`
		Count     int              `json:"count" doc:"Number of rows returned"`
		Truncated bool             `json:"truncated" doc:"Whether rows beyond the cap were dropped"`
	}
}

// Query executes a SQL query against DuckDB.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*QueryOutput, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}

	query, err := readOnly(input.Body.Query)
	if err != nil {
		return nil, err
	}

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get columns", err)
	}

	out := &QueryOutput{}
	out.Body.Columns = columns
	out.Body.Rows = []map[string]any{}
	for rows.Next() {
		if len(out.Body.Rows) == MaxQueryRows {
			out.Body.Truncated = true
			break
		}
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			continue
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out.Body.Rows = append(out.Body.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	out.Body.Count = len(out.Body.Rows)
	return out, nil
}

func (h *DBHandler) ready() error {
	if h.db == nil {
		return huma.Error503ServiceUnavailable("Database not available")
	}
	if _, err := h.svc.Snapshot(); err != nil {
		return problem(err)
	}
	return nil
}

// readOnly accepts a single statement starting with one of readStatements.
// A trailing semicolon is dropped.
func readOnly(query string) (string, error) {
	query = strings.TrimSpace(query)
	query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	if strings.Contains(query, ";") {
		return "", huma.Error400BadRequest("Only one statement per query")
	}
	words := strings.FieldsFunc(strings.ToUpper(query), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	})
	if len(words) == 0 || !slices.Contains(readStatements, words[0]) {
		return "", huma.Error400BadRequest("Only read-only queries are allowed: " + strings.Join(readStatements, ", "))
	}
	if words[0] == "WITH" && slices.ContainsFunc(words, func(w string) bool { return slices.Contains(writeKeywords, w) }) {
		return "", huma.Error400BadRequest("Only read-only queries are allowed")
	}
	return query, nil
}
