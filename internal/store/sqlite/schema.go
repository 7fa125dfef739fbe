package sqlite

// Decimals are stored as TEXT and computed in Go so no precision is lost to REAL affinity.
// Timestamps are unix milliseconds; price dates are YYYY-MM-DD strings.
const schema = `
CREATE TABLE IF NOT EXISTS customer_accounts (
	customer_id   INTEGER PRIMARY KEY,
	balance       TEXT NOT NULL DEFAULT '0',
	credit_limit  TEXT NOT NULL DEFAULT '0',
	daily_cap     TEXT,
	daily_used    TEXT,
	plan_type     TEXT NOT NULL CHECK (plan_type IN ('prepaid', 'postpaid', 'daily_capped')),
	created_at    INTEGER NOT NULL DEFAULT (CAST(unixepoch('subsec') * 1000 AS INTEGER)),
	updated_at    INTEGER NOT NULL DEFAULT (CAST(unixepoch('subsec') * 1000 AS INTEGER))
);

CREATE TABLE IF NOT EXISTS station_inventory (
	station_id      INTEGER NOT NULL,
	product_id      INTEGER NOT NULL,
	stock_quantity  TEXT NOT NULL DEFAULT '0',
	updated_at      INTEGER NOT NULL DEFAULT (CAST(unixepoch('subsec') * 1000 AS INTEGER)),
	PRIMARY KEY (station_id, product_id)
);

CREATE TABLE IF NOT EXISTS station_prices (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	station_id      INTEGER NOT NULL,
	product_id      INTEGER NOT NULL,
	customer_id     INTEGER NOT NULL,
	unit_price      TEXT NOT NULL,
	effective_from  TEXT NOT NULL DEFAULT (date('now')),
	effective_to    TEXT
);

CREATE INDEX IF NOT EXISTS idx_station_prices_key
	ON station_prices (station_id, product_id, customer_id, effective_from);

CREATE TABLE IF NOT EXISTS delivery_transactions (
	id                         INTEGER PRIMARY KEY AUTOINCREMENT,
	station_id                 INTEGER NOT NULL,
	product_id                 INTEGER NOT NULL,
	customer_id                INTEGER NOT NULL,
	requested_quantity         TEXT NOT NULL DEFAULT '0',
	fulfilled_quantity         TEXT NOT NULL DEFAULT '0',
	unit_price_at_fulfillment  TEXT,
	remarks                    TEXT NOT NULL DEFAULT '',
	revision                   INTEGER NOT NULL DEFAULT 0,
	created_at                 INTEGER NOT NULL DEFAULT (CAST(unixepoch('subsec') * 1000 AS INTEGER)),
	updated_at                 INTEGER NOT NULL DEFAULT (CAST(unixepoch('subsec') * 1000 AS INTEGER))
);

CREATE TABLE IF NOT EXISTS delivery_adjustments (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id  INTEGER NOT NULL REFERENCES delivery_transactions(id),
	revision        INTEGER NOT NULL,
	from_quantity   TEXT NOT NULL,
	to_quantity     TEXT NOT NULL,
	quantity_delta  TEXT NOT NULL,
	monetary_delta  TEXT NOT NULL,
	unit_price      TEXT NOT NULL,
	direction       TEXT NOT NULL CHECK (direction IN ('increase', 'decrease')),
	created_at      INTEGER NOT NULL DEFAULT (CAST(unixepoch('subsec') * 1000 AS INTEGER)),
	UNIQUE (transaction_id, revision)
);
`
