package registry

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS devices (
	device_id INTEGER PRIMARY KEY,
	name      TEXT NOT NULL,
	address   BLOB NOT NULL,
	secret    BLOB NOT NULL
);`

// SQLStore persists records in an SQLite database.
// SaveAll replaces all rows inside one transaction.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (or creates) the database at path.
func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// LoadAll returns all stored records ordered by device ID.
func (s *SQLStore) LoadAll() ([]Record, error) {
	rows, err := s.db.Query("SELECT device_id, name, address, secret FROM devices ORDER BY device_id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r       Record
			id      int64
			address []byte
		)
		if err := rows.Scan(&id, &r.Name, &address, &r.Secret); err != nil {
			return nil, err
		}
		if id < 0 || id > 0xFFFF || len(address) != AddressSize {
			return nil, fmt.Errorf("%w: bad row for device %d", ErrCorruptStore, id)
		}
		r.DeviceID = uint16(id)
		copy(r.Address[:], address)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveAll replaces every row with records.
func (s *SQLStore) SaveAll(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM devices"); err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO devices (device_id, name, address, secret) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		if _, err := stmt.Exec(int64(r.DeviceID), r.Name, r.Address[:], r.Secret); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
