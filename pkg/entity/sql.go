package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// SQLHandler reads and updates entities stored in a PostgreSQL table owned by the CRM.
// The table must have text columns id and account_id. Only allow-listed columns may be
// written by DATA_UPDATE steps.
type SQLHandler struct {
	db      *sql.DB
	table   string
	columns map[string]string
}

// NewSQLHandler creates a handler for table. columns maps the attribute names used in step
// configuration to column names.
func NewSQLHandler(db *sql.DB, table string, columns map[string]string) *SQLHandler {
	return &SQLHandler{db: db, table: table, columns: columns}
}

func (h *SQLHandler) Load(ctx context.Context, accountID, id string) (map[string]any, error) {
	query := fmt.Sprintf(
		"SELECT row_to_json(t) FROM %s t WHERE t.id = $1 AND t.account_id = $2",
		pq.QuoteIdentifier(h.table),
	)

	var raw []byte

	err := h.db.QueryRowContext(ctx, query, id, accountID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntityNotFound
		}

		return nil, fmt.Errorf("failed to query %s: %w", h.table, err)
	}

	var row map[string]any

	err = json.Unmarshal(raw, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s row: %w", h.table, err)
	}

	// Expose columns under their attribute names too, so conditions can use either.
	for attribute, column := range h.columns {
		if value, ok := row[column]; ok {
			row[attribute] = value
		}
	}

	return row, nil
}

func (h *SQLHandler) Update(ctx context.Context, accountID, id string, data map[string]any) error {
	attributes := make([]string, 0, len(data))
	for attribute := range data {
		attributes = append(attributes, attribute)
	}

	sort.Strings(attributes)

	assignments := make([]string, 0, len(attributes))
	args := []any{id, accountID}

	for _, attribute := range attributes {
		column, allowed := h.columns[attribute]
		if !allowed {
			return fmt.Errorf("attribute %q cannot be updated on %s", attribute, h.table)
		}

		value := data[attribute]

		switch value.(type) {
		case map[string]any, []any:
			encoded, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", attribute, err)
			}

			value = encoded
		}

		args = append(args, value)
		assignments = append(assignments, pq.QuoteIdentifier(column)+" = $"+strconv.Itoa(len(args)))
	}

	if len(assignments) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $1 AND account_id = $2",
		pq.QuoteIdentifier(h.table),
		strings.Join(assignments, ", "),
	)

	result, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", h.table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return ErrEntityNotFound
	}

	return nil
}
