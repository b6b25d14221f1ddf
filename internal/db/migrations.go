package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'request_status') THEN
			CREATE TYPE request_status AS ENUM ('PENDING', 'APPROVED', 'REJECTED', 'PAID', 'FULFILLED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'approval_status') THEN
			CREATE TYPE approval_status AS ENUM ('PENDING', 'APPROVED', 'REJECTED', 'DELEGATED', 'SKIPPED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'payment_status') THEN
			CREATE TYPE payment_status AS ENUM ('PENDING_AUTHORIZATION', 'AUTHORIZED', 'PAID', 'REJECTED');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		role VARCHAR(32) NOT NULL DEFAULT 'EMPLOYEE',
		department VARCHAR(128),
		manager_id UUID REFERENCES users(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		has_custom_role BOOLEAN NOT NULL DEFAULT FALSE,
		custom_role_is_system BOOLEAN NOT NULL DEFAULT FALSE,
		max_approval_limit NUMERIC(18,2),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_users_role ON users (role) WHERE is_active;`,
	`CREATE TABLE IF NOT EXISTS policies (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(255) NOT NULL,
		description TEXT,
		type VARCHAR(64) NOT NULL,
		rules TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		maker_id UUID NOT NULL REFERENCES users(id),
		checker_id UUID REFERENCES users(id),
		amount NUMERIC(18,2) NOT NULL,
		currency VARCHAR(8) NOT NULL DEFAULT 'USD',
		status payment_status NOT NULL DEFAULT 'PENDING_AUTHORIZATION',
		method VARCHAR(32) NOT NULL DEFAULT 'BANK_TRANSFER',
		notes TEXT,
		proof_url TEXT,
		authorized_at TIMESTAMPTZ,
		processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status);`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		user_id UUID NOT NULL REFERENCES users(id),
		title VARCHAR(255) NOT NULL,
		amount NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		currency VARCHAR(8) NOT NULL DEFAULT 'USD',
		category VARCHAR(128) NOT NULL,
		merchant VARCHAR(255),
		expense_date TIMESTAMPTZ NOT NULL,
		has_receipt BOOLEAN NOT NULL DEFAULT FALSE,
		status request_status NOT NULL DEFAULT 'PENDING',
		payment_id UUID REFERENCES payments(id),
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS requisitions (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		user_id UUID NOT NULL REFERENCES users(id),
		title VARCHAR(255) NOT NULL,
		amount NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		currency VARCHAR(8) NOT NULL DEFAULT 'USD',
		category VARCHAR(128) NOT NULL,
		description TEXT NOT NULL,
		type VARCHAR(32) NOT NULL DEFAULT 'STANDARD',
		department VARCHAR(128),
		branch VARCHAR(128),
		expected_date TIMESTAMPTZ,
		status request_status NOT NULL DEFAULT 'PENDING',
		payment_id UUID REFERENCES payments(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS monthly_budgets (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		user_id UUID NOT NULL REFERENCES users(id),
		title VARCHAR(255) NOT NULL,
		month DATE NOT NULL,
		total_amount NUMERIC(18,2) NOT NULL CHECK (total_amount > 0),
		currency VARCHAR(8) NOT NULL DEFAULT 'USD',
		category VARCHAR(128) NOT NULL,
		status request_status NOT NULL DEFAULT 'PENDING',
		payment_id UUID REFERENCES payments(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		created_by_id UUID NOT NULL REFERENCES users(id),
		vendor_name VARCHAR(255) NOT NULL,
		number VARCHAR(64) NOT NULL,
		amount NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		currency VARCHAR(8) NOT NULL DEFAULT 'USD',
		category VARCHAR(128) NOT NULL,
		due_date TIMESTAMPTZ,
		status request_status NOT NULL DEFAULT 'PENDING',
		payment_id UUID REFERENCES payments(id),
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_payable ON expenses (status) WHERE payment_id IS NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_requisitions_payable ON requisitions (status) WHERE payment_id IS NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_monthly_budgets_payable ON monthly_budgets (status) WHERE payment_id IS NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_payable ON invoices (status) WHERE payment_id IS NULL;`,
	`CREATE TABLE IF NOT EXISTS approvals (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		subject_kind VARCHAR(32) NOT NULL,
		subject_id UUID NOT NULL,
		approver_id UUID NOT NULL REFERENCES users(id),
		level INT NOT NULL CHECK (level > 0),
		status approval_status NOT NULL DEFAULT 'PENDING',
		comments TEXT,
		delegated_from_id UUID REFERENCES approvals(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		decided_at TIMESTAMPTZ
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_approvals_slot
		ON approvals (subject_kind, subject_id, approver_id, level)
		WHERE delegated_from_id IS NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_approvals_subject ON approvals (subject_kind, subject_id);`,
	`CREATE INDEX IF NOT EXISTS idx_approvals_approver_pending ON approvals (approver_id) WHERE status = 'PENDING';`,
	`INSERT INTO policies (name, description, type, rules, is_active)
	SELECT 'Global Spending Limit', 'Flag requests over $5,000 for review', 'SPENDING_LIMIT', '{"maxAmount": 5000, "isBlocking": false}', TRUE
	WHERE NOT EXISTS (SELECT 1 FROM policies WHERE name = 'Global Spending Limit');`,
	`INSERT INTO policies (name, description, type, rules, is_active)
	SELECT 'No Weekend Expenses', 'Block requests dated on weekends', 'TIME_LIMIT', '{"blockWeekends": true}', TRUE
	WHERE NOT EXISTS (SELECT 1 FROM policies WHERE name = 'No Weekend Expenses');`,
	`INSERT INTO policies (name, description, type, rules, is_active)
	SELECT 'Travel Approval Needed', 'Route travel requests over $200 through finance', 'APPROVAL_ROUTING', '{"minAmount": 200, "category": "Travel"}', TRUE
	WHERE NOT EXISTS (SELECT 1 FROM policies WHERE name = 'Travel Approval Needed');`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
