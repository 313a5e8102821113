package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func Connect(dbURL string) (*sqlx.DB, error) {
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Println("🔌 DATABASE CONNECTION ATTEMPT")
	log.Printf("   📍 Database URL length: %d characters", len(dbURL))
	log.Printf("   📍 URL prefix: %s...", dbURL[:min(30, len(dbURL))])
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	log.Println("🔄 Step 1: Attempting sqlx.Connect()...")
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ DATABASE CONNECTION FAILED AT sqlx.Connect()")
		log.Printf("   Error type: %T", err)
		log.Printf("   Error message: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("✅ Step 1 Complete: sqlx.Connect() succeeded")

	log.Println("🔄 Step 2: Testing connection with Ping()...")
	if err := db.Ping(); err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ DATABASE CONNECTION FAILED AT Ping()")
		log.Printf("   Error type: %T", err)
		log.Printf("   Error message: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("✅ Step 2 Complete: Ping() succeeded")

	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Println("✅ DATABASE CONNECTION SUCCESSFUL")
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	return db, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func Migrate(db *sqlx.DB) error {
	migrations := []string{
		// Users of every role. Facility staff carry a company, plant operators a plant.
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('driver', 'facility', 'incinerator', 'admin')),
			company_id TEXT,
			plant_id TEXT,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS fcm_tokens (
			id SERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			token TEXT NOT NULL UNIQUE,
			device_type TEXT NOT NULL CHECK(device_type IN ('ios', 'android')),
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Containers are owned by facilities; telemetry columns are updated in place
		`CREATE TABLE IF NOT EXISTS waste_containers (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			company_id TEXT NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			fullness INT NOT NULL DEFAULT 0 CHECK(fullness BETWEEN 0 AND 100),
			temperature DOUBLE PRECISION,
			waste_type TEXT NOT NULL DEFAULT 'general',
			last_update BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS incineration_plants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,

		`CREATE TABLE IF NOT EXISTS collection_sessions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			driver_id TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('active', 'completed')),
			start_time BIGINT NOT NULL,
			end_time BIGINT,
			start_latitude DOUBLE PRECISION,
			start_longitude DOUBLE PRECISION,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			FOREIGN KEY (driver_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Label and coordinates are copied at selection time
		`CREATE TABLE IF NOT EXISTS session_containers (
			session_id TEXT NOT NULL,
			container_id TEXT NOT NULL,
			label TEXT NOT NULL,
			sequence_order INT NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			visited BOOLEAN NOT NULL DEFAULT FALSE,
			visited_at BIGINT,
			collected_weight DOUBLE PRECISION CHECK(collected_weight >= 0),
			PRIMARY KEY (session_id, container_id),
			FOREIGN KEY (session_id) REFERENCES collection_sessions(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS handoffs (
			id TEXT PRIMARY KEY,
			handoff_id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL CHECK(type IN ('facility_to_driver', 'driver_to_incinerator')),
			status TEXT NOT NULL,
			session_id TEXT NOT NULL,
			plant_id TEXT,

			sender_user_id TEXT,
			sender_name TEXT NOT NULL,
			sender_confirmed_at BIGINT,
			sender_confirmed_by TEXT,
			receiver_user_id TEXT,
			receiver_name TEXT NOT NULL,
			receiver_confirmed_at BIGINT,
			receiver_confirmed_by TEXT,

			total_declared_weight DOUBLE PRECISION,
			total_containers INT NOT NULL DEFAULT 0,
			token TEXT,
			token_expires_at BIGINT,

			dispute_reason TEXT,
			dispute_description TEXT,
			dispute_raised_by TEXT,
			dispute_raised_name TEXT,
			dispute_raised_at BIGINT,
			resolving_at BIGINT,
			resolved_at BIGINT,
			resolution_notes TEXT,

			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			completed_at BIGINT,
			FOREIGN KEY (session_id) REFERENCES collection_sessions(id) ON DELETE CASCADE,
			FOREIGN KEY (plant_id) REFERENCES incineration_plants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS handoff_containers (
			handoff_id TEXT NOT NULL,
			container_id TEXT NOT NULL,
			position INT NOT NULL,
			label TEXT NOT NULL,
			declared_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
			confirmed_weight DOUBLE PRECISION,
			bag_count INT,
			PRIMARY KEY (handoff_id, container_id),
			FOREIGN KEY (handoff_id) REFERENCES handoffs(id) ON DELETE CASCADE
		)`,

		// Append-only audit trail, one row per status change
		`CREATE TABLE IF NOT EXISTS handoff_events (
			id BIGSERIAL PRIMARY KEY,
			handoff_id TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			actor TEXT NOT NULL,
			at BIGINT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (handoff_id) REFERENCES handoffs(id) ON DELETE CASCADE
		)`,

		// Exactly 1 row per driver, updated via UPSERT from WebSocket location updates
		`CREATE TABLE IF NOT EXISTS driver_current_location (
			driver_id TEXT PRIMARY KEY,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			heading DOUBLE PRECISION,
			speed DOUBLE PRECISION,
			accuracy DOUBLE PRECISION,
			session_id TEXT,
			timestamp BIGINT NOT NULL,
			is_connected BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			FOREIGN KEY (driver_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (session_id) REFERENCES collection_sessions(id) ON DELETE SET NULL
		)`,

		// One active session per driver, one incineration handoff per session
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_collection_sessions_one_active
			ON collection_sessions(driver_id) WHERE status = 'active'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_handoffs_one_incineration
			ON handoffs(session_id) WHERE type = 'driver_to_incinerator'`,

		`CREATE INDEX IF NOT EXISTS idx_users_plant_id ON users(plant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fcm_tokens_user_id ON fcm_tokens(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_waste_containers_company_id ON waste_containers(company_id)`,
		`CREATE INDEX IF NOT EXISTS idx_collection_sessions_driver_id ON collection_sessions(driver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_session_containers_seq ON session_containers(session_id, sequence_order)`,
		`CREATE INDEX IF NOT EXISTS idx_handoffs_session_id ON handoffs(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_handoffs_sender ON handoffs(sender_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_handoffs_receiver ON handoffs(receiver_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_handoffs_pending_expiry ON handoffs(token_expires_at) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_handoff_events_handoff_id ON handoff_events(handoff_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_driver_current_location_is_connected ON driver_current_location(is_connected)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Println("✓ Database migrations completed")
	return nil
}
