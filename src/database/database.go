package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/cryptocgt/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateUserTable()
	migrateTransactionTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		is_email_verified BOOLEAN DEFAULT FALSE,
		email_verification_token TEXT,
		email_verification_token_expires_at TIMESTAMP,
		password_reset_token TEXT,
		password_reset_token_expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		tx_key TEXT NOT NULL,
		date TEXT NOT NULL,
		exchange TEXT NOT NULL,
		asset TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price_eur TEXT NOT NULL,
		fee TEXT NOT NULL DEFAULT '0',
		fee_asset TEXT,
		tx_id TEXT,
		source TEXT NOT NULL,
		is_taxable BOOLEAN DEFAULT TRUE,
		tax_year INTEGER,
		description TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id),
		UNIQUE(user_id, tx_key)
	);

	CREATE TABLE IF NOT EXISTS cgt_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		report_id TEXT NOT NULL,
		tax_year INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		payload TEXT NOT NULL,
		calculated_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id),
		UNIQUE(user_id, tax_year)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

func tableColumns(table string) (map[string]bool, bool) {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("Table does not exist yet, no migration needed.", "table", table)
			} else {
				stdlog.Printf("Table %s does not exist yet, no migration needed.", table)
			}
			return nil, false
		}
		if logger.L != nil {
			logger.L.Error("Error checking for table", "table", table, "error", err)
		} else {
			stdlog.Printf("Error checking for table %s: %v", table, err)
		}
		return nil, false
	}

	rows, err := DB.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema", "table", table, "error", err)
		} else {
			stdlog.Printf("Error querying table schema for %s: %v", table, err)
		}
		return nil, false
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info", "table", table, "error", err)
			} else {
				stdlog.Printf("Error scanning column info for %s: %v", table, err)
			}
			return nil, false
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info", "table", table, "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for %s: %v", table, err)
		}
		return nil, false
	}
	return columnExists, true
}

func addColumnIfMissing(table, column, definition string, columnExists map[string]bool) {
	if columnExists[column] {
		return
	}
	_, err := DB.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + definition)
	if err != nil {
		logger.L.Error("Error adding column", "table", table, "column", column, "error", err)
		return
	}
	logger.L.Info("Added column", "table", table, "column", column)
}

func migrateUserTable() {
	columns, ok := tableColumns("users")
	if !ok {
		return
	}

	addColumnIfMissing("users", "email", "TEXT NOT NULL DEFAULT ''", columns)
	addColumnIfMissing("users", "is_email_verified", "BOOLEAN DEFAULT FALSE", columns)
	addColumnIfMissing("users", "email_verification_token", "TEXT", columns)
	addColumnIfMissing("users", "email_verification_token_expires_at", "TIMESTAMP", columns)
	addColumnIfMissing("users", "password_reset_token", "TEXT", columns)
	addColumnIfMissing("users", "password_reset_token_expires_at", "TIMESTAMP", columns)
	addColumnIfMissing("users", "created_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP", columns)
	addColumnIfMissing("users", "updated_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP", columns)
}

func migrateTransactionTable() {
	columns, ok := tableColumns("transactions")
	if !ok {
		return
	}

	addColumnIfMissing("transactions", "tax_year", "INTEGER", columns)
	addColumnIfMissing("transactions", "description", "TEXT", columns)
	addColumnIfMissing("transactions", "fee_asset", "TEXT", columns)
	addColumnIfMissing("transactions", "tx_id", "TEXT", columns)
}
