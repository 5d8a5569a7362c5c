//go:build duckdb && cgo

// DuckDB needs cgo. Build with:
//
//	CGO_ENABLED=1 go build -tags duckdb ./cmd/skyarena
package drivers

import (
	_ "github.com/marcboeker/go-duckdb"
)
