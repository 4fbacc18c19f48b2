package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks a migrated database against the shape the store expects
type SchemaValidator struct {
	db *sql.DB
}

func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

var requiredTables = map[string]string{
	"users":              "Resolved identities",
	"debate_topics":      "Debate topics",
	"debate_sessions":    "Session windows and capacity",
	"participants":       "Durable membership",
	"messages":           "Append-only message log",
	"moderation_actions": "Moderation audit trail",
	"schema_migrations":  "Migration tracking",
}

var requiredIndexes = map[string]string{
	"idx_sessions_topic":              "Sessions by topic",
	"idx_sessions_created_by":         "Session ownership queries",
	"idx_participants_user":           "Memberships by user",
	"idx_participants_session_active": "Active participant counts",
	"idx_messages_session_time":       "Ordered history retrieval",
	"idx_moderation_session":          "Moderation history",
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for table, description := range requiredTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateTableStructure verifies the columns the store reads and writes
func (v *SchemaValidator) ValidateTableStructure() error {
	tables := map[string]map[string]string{
		"debate_sessions": {
			"id":               "INTEGER",
			"topic_id":         "INTEGER",
			"start_time":       "DATETIME",
			"end_time":         "DATETIME",
			"created_by":       "INTEGER",
			"max_participants": "INTEGER",
			"is_active":        "INTEGER",
		},
		"participants": {
			"session_id": "INTEGER",
			"user_id":    "INTEGER",
			"joined_at":  "DATETIME",
			"is_active":  "INTEGER",
		},
		"messages": {
			"id":         "INTEGER",
			"session_id": "INTEGER",
			"user_id":    "INTEGER",
			"content":    "TEXT",
			"timestamp":  "DATETIME",
			"is_deleted": "INTEGER",
		},
	}

	for table, columns := range tables {
		if err := v.validateColumns(table, columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

// ValidateIndexes verifies that the query indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for index, purpose := range requiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// ValidateConstraints probes that foreign keys and uniqueness are enforced.
// Probes run in a transaction that is always rolled back.
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT INTO participants (session_id, user_id, joined_at) VALUES (-1, -1, CURRENT_TIMESTAMP)`); err == nil {
		return fmt.Errorf("foreign key constraint not enforced: participants.session_id")
	}

	if _, err := tx.Exec(`INSERT INTO users (id, username, role) VALUES (-1, 'constraint-probe', 'ADMIN')`); err == nil {
		return fmt.Errorf("check constraint not enforced: users.role")
	}

	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue interface{}
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, expectedType := range expectedColumns {
		foundType, exists := found[column]
		if !exists {
			return fmt.Errorf("column %s not found", column)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", column, foundType, expectedType)
		}
	}
	return nil
}
