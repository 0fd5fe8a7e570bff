package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createUUIDExtension,
		createEventsTable,
		createPaymentsTable,
		createWaitingListTable,
		createPaymentsAuthRefIndex,
		createPaymentsActiveGuestIndex,
		createWaitingListWaitingIndex,
		createEventsDeadlineIndex,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createUUIDExtension = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    slug VARCHAR(12) UNIQUE NOT NULL,
    organizer_id UUID NOT NULL,
    organizer_email VARCHAR(255) NOT NULL,
    name VARCHAR(200) NOT NULL,
    description TEXT,
    starts_at TIMESTAMPTZ NOT NULL,
    pay_deadline TIMESTAMPTZ NOT NULL,
    price_cents BIGINT NOT NULL,
    service_fee_cents BIGINT NOT NULL,
    min_guests INTEGER NOT NULL CHECK (min_guests >= 2),
    max_guests INTEGER NOT NULL CHECK (max_guests >= min_guests),
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (pay_deadline < starts_at)
);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    event_id UUID NOT NULL REFERENCES events(id),
    guest_name VARCHAR(200) NOT NULL,
    guest_email VARCHAR(255) NOT NULL,
    auth_ref VARCHAR(255),
    charge_ref VARCHAR(255),
    amount_cents BIGINT NOT NULL,
    owner_share_cents BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    cancel_token UUID UNIQUE NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createWaitingListTable = `
CREATE TABLE IF NOT EXISTS waiting_list (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    event_id UUID NOT NULL REFERENCES events(id),
    guest_name VARCHAR(200) NOT NULL,
    guest_email VARCHAR(255) NOT NULL,
    phone VARCHAR(40),
    notify_whatsapp BOOLEAN NOT NULL DEFAULT FALSE,
    notify_viber BOOLEAN NOT NULL DEFAULT FALSE,
    notified_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createPaymentsAuthRefIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_auth_ref
    ON payments (auth_ref) WHERE auth_ref IS NOT NULL;`

// one live payment per guest per event; terminal rows stay for audit
const createPaymentsActiveGuestIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_active_guest
    ON payments (event_id, lower(guest_email))
    WHERE status NOT IN ('cancelled', 'failed', 'refunded');`

const createWaitingListWaitingIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_waiting_list_waiting
    ON waiting_list (event_id, lower(guest_email))
    WHERE notified_at IS NULL;`

const createEventsDeadlineIndex = `
CREATE INDEX IF NOT EXISTS idx_events_deadline
    ON events (pay_deadline) WHERE status IN ('active', 'confirmed');`
