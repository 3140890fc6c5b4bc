package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apache/stanbol-sub040/internal/codec"
	"github.com/apache/stanbol-sub040/internal/compiler"
	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
	"github.com/apache/stanbol-sub040/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.Index = (*Store)(nil)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store writes a document in a single transaction, replacing the fields and
// tokens the entity had before.
func (s *Store) Store(ctx context.Context, doc *domain.IndexDocument) error {
	if doc == nil || doc.ID == "" {
		return domain.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := deleteEntity(ctx, tx, doc.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO entities (id, updated_at) VALUES (?, ?)", doc.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("inserting entity: %w", err)
	}

	fieldStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO entity_fields (entity_id, name, position, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing field insert: %w", err)
	}
	defer fieldStmt.Close()

	tokenStmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO entity_tokens (entity_id, name, token) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing token insert: %w", err)
	}
	defer tokenStmt.Close()

	for _, name := range doc.FieldNames() {
		key, keyErr := codec.DecodeFieldName(name)
		if keyErr != nil {
			logger.Debug("No tokens for %s: %v", name, keyErr)
		}
		for pos, value := range doc.Fields[name] {
			if _, err := fieldStmt.ExecContext(ctx, doc.ID, name, pos, value); err != nil {
				return fmt.Errorf("inserting field %s: %w", name, err)
			}
			if keyErr != nil {
				continue
			}
			for _, tok := range codec.Analyze(domain.IndexValue{Value: value, Type: key.Type}) {
				if _, err := tokenStmt.ExecContext(ctx, doc.ID, name, tok); err != nil {
					return fmt.Errorf("inserting token of %s: %w", name, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing entity %s: %w", doc.ID, err)
	}
	return nil
}

func deleteEntity(ctx context.Context, tx *sql.Tx, id string) error {
	for _, stmt := range []string{
		"DELETE FROM entity_tokens WHERE entity_id = ?",
		"DELETE FROM entity_fields WHERE entity_id = ?",
		"DELETE FROM entities WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("deleting entity %s: %w", id, err)
		}
	}
	return nil
}

// Load retrieves a document by entity id.
func (s *Store) Load(ctx context.Context, id string) (*domain.IndexDocument, error) {
	// The row and its fields are read from one snapshot.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read only

	return loadDocument(ctx, tx, id)
}

func loadDocument(ctx context.Context, q queryer, id string) (*domain.IndexDocument, error) {
	var exists int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM entities WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading entity %s: %w", id, err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT name, value FROM entity_fields
		WHERE entity_id = ?
		ORDER BY name, position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("loading fields of %s: %w", id, err)
	}
	defer rows.Close()

	doc := domain.NewIndexDocument(id)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scanning field: %w", err)
		}
		doc.Add(name, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fields: %w", err)
	}
	return doc, nil
}

// Remove deletes a document.
func (s *Store) Remove(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := deleteEntity(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveAll deletes every document. Settings are kept.
func (s *Store) RemoveAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"entity_tokens", "entity_fields", "entities"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Query returns the matching documents ordered by id.
//
// Value and range clauses become token lookups in SQL. Text clauses are
// narrowed to entities holding the field and then matched in Go, in which
// case paging is applied after matching.
func (s *Store) Query(ctx context.Context, q *domain.CompiledQuery) ([]domain.IndexDocument, error) {
	var (
		conds    []string
		args     []any
		postText []domain.Clause
	)
	for _, clause := range q.Clauses() {
		cond, condArgs, err := condition(clause)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
		args = append(args, condArgs...)
		if clause.Kind() == domain.ConstraintText {
			postText = append(postText, clause)
		}
	}

	stmt := "SELECT id FROM entities e"
	if len(conds) > 0 {
		stmt += " WHERE " + strings.Join(conds, " AND ")
	}
	stmt += " ORDER BY id"
	if len(postText) == 0 {
		limit := q.Limit()
		if limit <= 0 {
			limit = -1 // no limit
		}
		stmt += " LIMIT ? OFFSET ?"
		args = append(args, limit, q.Offset())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read only

	ids, err := queryIDs(ctx, tx, stmt, args)
	if err != nil {
		return nil, err
	}

	var results []domain.IndexDocument
	skipped := 0
	for _, id := range ids {
		doc, err := loadDocument(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if len(postText) > 0 {
			if !matchAll(postText, doc) {
				continue
			}
			if skipped < q.Offset() {
				skipped++
				continue
			}
		}
		results = append(results, *doc)
		if len(postText) > 0 && q.Limit() > 0 && len(results) >= q.Limit() {
			break
		}
	}
	return results, nil
}

func queryIDs(ctx context.Context, q queryer, stmt string, args []any) ([]string, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ids: %w", err)
	}
	return ids, nil
}

// condition translates a clause into an SQL predicate on entities e.
func condition(clause domain.Clause) (string, []any, error) {
	const tokenExists = "EXISTS (SELECT 1 FROM entity_tokens t WHERE t.entity_id = e.id AND t.name = ?"

	switch clause.Kind() {
	case domain.ConstraintValue:
		tokens := clause.Tokens()
		if len(tokens) == 0 {
			return "0", nil, nil
		}
		parts := make([]string, len(tokens))
		args := make([]any, 0, 2*len(tokens))
		for i, tok := range tokens {
			parts[i] = tokenExists + " AND t.token = ?)"
			args = append(args, clause.Name(), tok)
		}
		return "(" + strings.Join(parts, " AND ") + ")", args, nil

	case domain.ConstraintRange:
		lower, hasLower, upper, hasUpper := clause.Bounds()
		cond := tokenExists
		args := []any{clause.Name()}
		if hasLower {
			cond += " AND t.token >= ?"
			args = append(args, lower)
		}
		if hasUpper {
			cond += " AND t.token < ?"
			args = append(args, upper)
		}
		return cond + ")", args, nil

	case domain.ConstraintText:
		return "EXISTS (SELECT 1 FROM entity_fields f WHERE f.entity_id = e.id AND f.name = ?)",
			[]any{clause.Name()}, nil

	default:
		return "", nil, fmt.Errorf("%w: clause kind %s", domain.ErrUnsupportedType, clause.Kind())
	}
}

func matchAll(clauses []domain.Clause, doc *domain.IndexDocument) bool {
	for _, c := range clauses {
		if !compiler.Match(c, doc) {
			return false
		}
	}
	return true
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entities: %w", err)
	}
	return n, nil
}

// Settings returns the persisted Yard settings.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM yard_settings")
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	return settings, nil
}

// SaveSettings replaces the persisted Yard settings.
func (s *Store) SaveSettings(ctx context.Context, settings map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM yard_settings"); err != nil {
		return fmt.Errorf("clearing settings: %w", err)
	}
	for key, value := range settings {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO yard_settings (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("saving setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}
