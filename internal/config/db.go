package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DBConfig holds database connection parameters
type DBConfig struct {
	DSN string
}

// LoadDBConfig loads database configuration from environment variables
func LoadDBConfig() (*DBConfig, error) {
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")

	if dbHost == "" || dbPort == "" || dbUser == "" || dbName == "" {
		return nil, fmt.Errorf("database environment variables not set (DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME)")
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPassword, dbName)

	return &DBConfig{DSN: dsn}, nil
}

// ConnectDB establishes a connection to the PostgreSQL database
func ConnectDB(cfg *DBConfig) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var err error

	// Retry connecting to the database a few times
	maxRetries := 5
	retryInterval := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		pool, err = pgxpool.New(context.Background(), cfg.DSN)
		if err == nil {
			// Try to ping the database
			err = pool.Ping(context.Background())
			if err == nil {
				log.Println("Successfully connected to PostgreSQL!")
				return pool, nil
			}
		}
		log.Printf("Failed to connect to database (attempt %d/%d): %v. Retrying in %v...", i+1, maxRetries, err, retryInterval)
		time.Sleep(retryInterval)
	}
	return nil, fmt.Errorf("unable to connect to database after %d attempts: %w", maxRetries, err)
}

// AutoMigrate creates tables if they don't exist.
// Child tables carry no ON DELETE CASCADE: removing a lot deletes its
// photos and status history explicitly, in one transaction.
func AutoMigrate(db *pgxpool.Pool) error {
	sql := `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS lots (
		id BIGSERIAL PRIMARY KEY,
		neighborhood TEXT NOT NULL,
		micro_area TEXT,
		address TEXT NOT NULL,
		reference_note TEXT,
		has_trash BOOLEAN NOT NULL DEFAULT FALSE,
		has_standing_water BOOLEAN NOT NULL DEFAULT FALSE,
		risk TEXT NOT NULL CHECK (risk IN ('Low', 'Medium', 'High')) DEFAULT 'Low',
		status TEXT NOT NULL CHECK (status IN ('Pending', 'Cleaning', 'Clean', 'Recurrent')) DEFAULT 'Pending',
		notes TEXT,
		latitude TEXT,
		longitude TEXT,
		created_by INT REFERENCES users(id),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS lot_photos (
		id BIGSERIAL PRIMARY KEY,
		lot_id BIGINT NOT NULL REFERENCES lots(id),
		stored_filename TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS lot_status_changes (
		id BIGSERIAL PRIMARY KEY,
		lot_id BIGINT NOT NULL REFERENCES lots(id),
		previous_status TEXT NOT NULL,
		new_status TEXT NOT NULL,
		actor_id INT REFERENCES users(id),
		changed_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_lots_created_by ON lots(created_by);
	CREATE INDEX IF NOT EXISTS idx_lots_neighborhood ON lots(neighborhood);
	CREATE INDEX IF NOT EXISTS idx_lots_risk ON lots(risk);
	CREATE INDEX IF NOT EXISTS idx_lots_status ON lots(status);
	CREATE INDEX IF NOT EXISTS idx_lot_photos_lot_id ON lot_photos(lot_id);
	CREATE INDEX IF NOT EXISTS idx_lot_status_changes_lot_id ON lot_status_changes(lot_id);

    -- Function to update updated_at column
    CREATE OR REPLACE FUNCTION update_updated_at_column()
    RETURNS TRIGGER AS $$
    BEGIN
       NEW.updated_at = NOW();
       RETURN NEW;
    END;
    $$ language 'plpgsql';

    -- Trigger for lots table
    DO $$
    BEGIN
        IF NOT EXISTS (
            SELECT 1
            FROM pg_trigger
            WHERE tgname = 'set_lots_updated_at' AND tgrelid = 'lots'::regclass
        ) THEN
            CREATE TRIGGER set_lots_updated_at
            BEFORE UPDATE ON lots
            FOR EACH ROW
            EXECUTE FUNCTION update_updated_at_column();
        END IF;
    END
    $$;
	`
	_, err := db.Exec(context.Background(), sql)
	if err != nil {
		return fmt.Errorf("unable to apply migrations: %w", err)
	}

	log.Println("AutoMigrate applied successfully")
	return nil
}
