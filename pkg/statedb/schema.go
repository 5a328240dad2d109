package statedb

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides state database schema validation
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and startup verification without coupling to the migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"profiles":          "Stable per-profile user IDs",
		"identities":        "Serialized session identity per scope",
		"progress_events":   "Training progress log replay",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := tableExists(v.db, table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and the stored schema
func (v *SchemaValidator) ValidateTableStructure() error {
	profileColumns := map[string]string{
		"scope":      "TEXT",
		"user_id":    "TEXT",
		"created_at": "DATETIME",
	}
	if err := v.validateColumns("profiles", profileColumns); err != nil {
		return fmt.Errorf("profiles table structure invalid: %w", err)
	}

	identityColumns := map[string]string{
		"scope":      "TEXT",
		"payload":    "TEXT",
		"updated_at": "DATETIME",
	}
	if err := v.validateColumns("identities", identityColumns); err != nil {
		return fmt.Errorf("identities table structure invalid: %w", err)
	}

	progressColumns := map[string]string{
		"id":         "INTEGER",
		"scope":      "TEXT",
		"session_id": "TEXT",
		"message":    "TEXT",
		"timestamp":  "DATETIME",
	}
	if err := v.validateColumns("progress_events", progressColumns); err != nil {
		return fmt.Errorf("progress_events table structure invalid: %w", err)
	}

	return nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}

		foundColumns[name] = dataType
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return rows.Err()
}
