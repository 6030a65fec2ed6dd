// Package dbtest provides in-memory sqlite databases that mirror the postgres
// schema closely enough for repository and service tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/retailops-backend/pkg/config"
	"github.com/angelmondragon/retailops-backend/pkg/db"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
)

var schema = []string{
	`CREATE TABLE product_variants (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL UNIQUE,
  barcode TEXT,
  name TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE locations (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE stock_levels (
  variant_id TEXT NOT NULL,
  location_id TEXT NOT NULL,
  on_hand INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME,
  PRIMARY KEY (variant_id, location_id)
);`,
	`CREATE TABLE inventory_movements (
  id TEXT PRIMARY KEY,
  variant_id TEXT NOT NULL,
  location_id TEXT NOT NULL,
  type TEXT NOT NULL,
  quantity_delta INTEGER NOT NULL,
  balance_after INTEGER NOT NULL,
  sequence INTEGER NOT NULL,
  reference_type TEXT,
  reference_id TEXT,
  note TEXT,
  occurred_at DATETIME NOT NULL,
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX uq_inventory_movements_reference
  ON inventory_movements (reference_type, reference_id, type, variant_id, location_id);`,
	`CREATE INDEX idx_inventory_movements_key
  ON inventory_movements (variant_id, location_id, occurred_at);`,
	`CREATE UNIQUE INDEX uq_inventory_movements_sequence
  ON inventory_movements (variant_id, location_id, sequence);`,
	`CREATE TABLE inventory_voided_references (
  reference_type TEXT NOT NULL,
  reference_id TEXT NOT NULL,
  movement_type TEXT NOT NULL,
  variant_id TEXT NOT NULL,
  location_id TEXT NOT NULL,
  reason TEXT,
  voided_at DATETIME NOT NULL,
  PRIMARY KEY (reference_type, reference_id, movement_type)
);`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  channel TEXT NOT NULL,
  external_id TEXT,
  status TEXT NOT NULL,
  customer_name TEXT,
  customer_email TEXT,
  currency TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  canceled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX uq_orders_channel_external ON orders (channel, external_id);`,
	`CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  variant_id TEXT NOT NULL,
  location_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE order_returns (
  id TEXT PRIMARY KEY,
  order_item_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  status TEXT NOT NULL,
  reason TEXT,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE purchase_orders (
  id TEXT PRIMARY KEY,
  supplier_name TEXT NOT NULL,
  reference TEXT NOT NULL,
  location_id TEXT NOT NULL,
  status TEXT NOT NULL,
  currency TEXT NOT NULL,
  received_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX uq_purchase_orders_supplier_reference ON purchase_orders (supplier_name, reference);`,
	`CREATE TABLE purchase_order_lines (
  id TEXT PRIMARY KEY,
  purchase_order_id TEXT NOT NULL,
  variant_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  raw_unit_cost TEXT NOT NULL,
  unit_cost TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE integrations (
  id TEXT PRIMARY KEY,
  channel TEXT NOT NULL,
  name TEXT NOT NULL,
  secret TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json BLOB NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  replayed_at DATETIME,
  created_at DATETIME
);`,
}

// New opens a private in-memory database with the full schema applied.
func New(t *testing.T) *db.Client {
	t.Helper()

	client, err := db.New(context.Background(), config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:retailops_" + uuid.NewString() + "?mode=memory&cache=shared",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	for _, stmt := range schema {
		require.NoError(t, client.DB().Exec(stmt).Error)
	}
	return client
}

// SeedKey inserts a variant and an active location and returns both.
func SeedKey(t *testing.T, client *db.Client) (models.ProductVariant, models.Location) {
	t.Helper()

	suffix := uuid.NewString()[:8]
	variant := models.ProductVariant{SKU: "SKU-" + suffix, Name: "Variant " + suffix}
	require.NoError(t, client.DB().Create(&variant).Error)

	location := models.Location{Code: "LOC-" + suffix, Name: "Location " + suffix, IsActive: true}
	require.NoError(t, client.DB().Create(&location).Error)

	return variant, location
}

// SeedStock sets the starting on-hand count for a key without a movement.
func SeedStock(t *testing.T, client *db.Client, variantID, locationID uuid.UUID, onHand int) {
	t.Helper()

	level := models.StockLevel{VariantID: variantID, LocationID: locationID, OnHand: onHand}
	require.NoError(t, client.DB().Create(&level).Error)
}
