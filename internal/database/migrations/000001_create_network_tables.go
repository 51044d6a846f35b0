package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// createNetworkTables creates the partner network, order and commission tables
func createNetworkTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_network_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

				CREATE TABLE IF NOT EXISTS partners (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					telegram_id VARCHAR(50) NOT NULL UNIQUE,
					first_name VARCHAR(100) NOT NULL,
					last_name VARCHAR(100),
					username VARCHAR(100),
					email VARCHAR(255),
					phone VARCHAR(50),
					sponsor_id UUID REFERENCES partners(id),
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					total_procurement DECIMAL(20, 2) DEFAULT 0,
					total_commissions DECIMAL(20, 2) DEFAULT 0,
					joined_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					last_activity_at TIMESTAMP WITH TIME ZONE,
					subscription_ends_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_partners_sponsor_id ON partners(sponsor_id);
				CREATE INDEX idx_partners_status ON partners(status);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS network_audit_logs (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					partner_id UUID NOT NULL REFERENCES partners(id),
					event_type VARCHAR(50) NOT NULL,
					previous_sponsor_id UUID,
					new_sponsor_id UUID,
					details JSONB,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_network_audit_logs_partner_id ON network_audit_logs(partner_id);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS products (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					external_id VARCHAR(255) NOT NULL UNIQUE,
					slug VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					category VARCHAR(255),
					price DECIMAL(20, 2) NOT NULL DEFAULT 0,
					is_active BOOLEAN DEFAULT TRUE,
					synced_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS orders (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					reference VARCHAR(255) NOT NULL UNIQUE,
					buyer_id UUID NOT NULL REFERENCES partners(id),
					total_amount DECIMAL(20, 2) NOT NULL DEFAULT 0,
					currency VARCHAR(3) DEFAULT 'RUB',
					status VARCHAR(20) NOT NULL DEFAULT 'pending',
					external_ref VARCHAR(255),
					confirmed_at TIMESTAMP WITH TIME ZONE,
					cancelled_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_orders_buyer_id ON orders(buyer_id);
				CREATE INDEX idx_orders_status ON orders(status);

				CREATE TABLE IF NOT EXISTS order_items (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					order_id UUID NOT NULL REFERENCES orders(id),
					product_id UUID REFERENCES products(id),
					quantity INT NOT NULL DEFAULT 1,
					unit_price DECIMAL(20, 2) NOT NULL DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_order_items_order_id ON order_items(order_id);
			`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS rule_set_versions (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					effective_from TIMESTAMP WITH TIME ZONE NOT NULL,
					published_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					notes TEXT,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_rule_set_versions_effective_from ON rule_set_versions(effective_from);

				CREATE TABLE IF NOT EXISTS commission_rules (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					version_id UUID NOT NULL REFERENCES rule_set_versions(id),
					level INT NOT NULL,
					percent DECIMAL(10, 4) NOT NULL,
					min_personal_volume DECIMAL(20, 2) DEFAULT 0,
					min_active_downline INT DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					UNIQUE(version_id, level)
				);

				CREATE TABLE IF NOT EXISTS commission_entries (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					order_id UUID NOT NULL REFERENCES orders(id),
					partner_id UUID NOT NULL REFERENCES partners(id),
					source_partner_id UUID NOT NULL REFERENCES partners(id),
					level INT NOT NULL,
					percent DECIMAL(10, 4) NOT NULL,
					base_amount DECIMAL(20, 2) NOT NULL,
					amount DECIMAL(20, 2) NOT NULL,
					state VARCHAR(20) NOT NULL DEFAULT 'accrued',
					reverses_entry_id UUID REFERENCES commission_entries(id),
					paid_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_commission_entries_order_id ON commission_entries(order_id);
				CREATE INDEX idx_commission_entries_partner_id ON commission_entries(partner_id);

				CREATE TABLE IF NOT EXISTS admin_users (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					email VARCHAR(255) NOT NULL UNIQUE,
					password_hash VARCHAR(255) NOT NULL,
					totp_secret VARCHAR(255),
					last_login_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS jobs (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					type VARCHAR(50) NOT NULL,
					payload JSONB,
					status VARCHAR(20) NOT NULL DEFAULT 'pending',
					retry_count INT DEFAULT 0,
					max_retries INT DEFAULT 3,
					retry_at TIMESTAMP WITH TIME ZONE,
					error TEXT,
					result JSONB,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_jobs_status ON jobs(status);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			for _, table := range []string{
				"jobs", "admin_users", "commission_entries", "commission_rules",
				"rule_set_versions", "order_items", "orders", "products",
				"network_audit_logs", "partners",
			} {
				if err := tx.Exec("DROP TABLE IF EXISTS " + table).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}
