package store

import (
	"database/sql"
	"fmt"
)

// codec maps the rows of one table to sqlite.
type codec[E any] struct {
	table  string
	keyCol string
	load   func(db *sql.DB) ([]E, error)
	upsert func(tx *sql.Tx, row E) error
}

func (c codec[E]) delete(tx *sql.Tx, key string) error {
	_, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, c.table, c.keyCol), key)
	return err
}

func (c codec[E]) wipe(tx *sql.Tx) error {
	_, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s`, c.table))
	return err
}

// scanRows collects every row of a query with scan.
func scanRows[E any](rows *sql.Rows, scan func(*sql.Rows) (E, error)) ([]E, error) {
	defer rows.Close()

	var out []E
	for rows.Next() {
		row, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
