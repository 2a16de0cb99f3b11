//go:build !sqlite3_cgo

package db

import (
	// pure-Go driver, the default build needs no C toolchain
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	driverID   = "ncruces/go-sqlite3"
	driverName = "sqlite3"
)
