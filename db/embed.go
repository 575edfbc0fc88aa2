// Package db embeds the coupon engine's PostgreSQL schema.
package db

import _ "embed"

// Schema holds the idempotent DDL for the coupons, redemptions and api_keys
// tables.
//
//go:embed migrations/001_schema.sql
var Schema string
