package testutil

// StockMigrations returns the schema statements for the stock service,
// kept in Go so integration tests can apply the schema without shelling
// out to psql.
func StockMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS container_types (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL UNIQUE,
			surface_area_cm2 NUMERIC(10,2),
			working_volume_ml NUMERIC(10,2),
			optimal_confluency_pct NUMERIC(5,2),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS nomenclature_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			category VARCHAR(32) NOT NULL,
			unit VARCHAR(32) NOT NULL,
			container_type_id UUID REFERENCES container_types(id),
			notes TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT nomenclature_category_valid CHECK (category IN (
				'medium', 'serum', 'buffer', 'supplement', 'enzyme',
				'reagent', 'consumable', 'equipment'
			)),
			CONSTRAINT nomenclature_name_key UNIQUE (name)
		)`,
		`CREATE TABLE IF NOT EXISTS stock_batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			nomenclature_id UUID NOT NULL REFERENCES nomenclature_items(id),
			batch_number VARCHAR(100) NOT NULL,
			quantity INTEGER NOT NULL,
			volume_per_unit NUMERIC(14,3),
			current_unit_volume NUMERIC(14,3),
			expiration_date DATE,
			status VARCHAR(16) NOT NULL DEFAULT 'available',
			manufacturer VARCHAR(255),
			supplier VARCHAR(255),
			invoice_number VARCHAR(100),
			notes TEXT,
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT batch_quantity_non_negative CHECK (quantity >= 0),
			CONSTRAINT batch_unit_volume_bounds CHECK (
				current_unit_volume IS NULL OR
				(current_unit_volume >= 0 AND current_unit_volume <= volume_per_unit)
			),
			CONSTRAINT batch_status_valid CHECK (status IN (
				'available', 'reserved', 'expired', 'depleted'
			)),
			CONSTRAINT batch_number_per_nomenclature_key UNIQUE (nomenclature_id, batch_number)
		)`,
		`CREATE INDEX IF NOT EXISTS stock_batches_fefo_idx
			ON stock_batches (nomenclature_id, expiration_date, received_at)`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			batch_id UUID NOT NULL REFERENCES stock_batches(id),
			movement_type VARCHAR(16) NOT NULL,
			unit_delta INTEGER NOT NULL DEFAULT 0,
			volume_delta NUMERIC(16,3),
			reason TEXT,
			operation_ref VARCHAR(255),
			performed_by VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT movement_type_valid CHECK (movement_type IN (
				'receive', 'consume', 'adjust'
			))
		)`,
		`CREATE INDEX IF NOT EXISTS stock_movements_batch_idx
			ON stock_movements (batch_id, created_at DESC)`,
	}
}
