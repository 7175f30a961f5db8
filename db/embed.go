// Package db provides the embedded schema of the fallback menu catalog.
package db

import _ "embed"

// Schema contains the DDL statements for all catalog tables.
//
//go:embed migrations/001_schema.sql
var Schema string
