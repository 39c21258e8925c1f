package models

import (
	"database/sql"
	"time"
)

// Account represents a brokerage account owning trade transactions.
type Account struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// FindOrCreateAccount looks an account up by name (case-insensitive) and
// creates it when missing.
func FindOrCreateAccount(db *sql.DB, name string) (Account, error) {
	var account Account
	err := db.QueryRow(
		`SELECT id, name FROM accounts WHERE name = ? COLLATE NOCASE`, name,
	).Scan(&account.ID, &account.Name)
	if err == nil {
		return account, nil
	}
	if err != sql.ErrNoRows {
		return Account{}, err
	}

	result, err := db.Exec(`INSERT INTO accounts (name) VALUES (?)`, name)
	if err != nil {
		return Account{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Account{}, err
	}
	return Account{ID: id, Name: name}, nil
}
