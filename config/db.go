package config

import (
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// DBContext specifies config information for loading a new DB.
type DBContext struct {
	// DB name
	ID string
	// Data directory given on the command line
	DataDir string
	// Backend; defaults to goleveldb
	Backend dbm.BackendType
}

// DBProvider takes a DBContext and returns an instantiated DB.
type DBProvider func(*DBContext) (dbm.DB, error)

// DefaultDBProvider creates a DB using the given ctx.
func DefaultDBProvider(ctx *DBContext) (dbm.DB, error) {
	backend := ctx.Backend
	if backend == "" {
		backend = dbm.GoLevelDBBackend
	}
	db, err := dbm.NewDB(ctx.ID, backend, DBDir(ctx.DataDir))
	if err != nil {
		return nil, fmt.Errorf("database provider: %w", err)
	}
	return db, nil
}

// MemDBProvider returns an in-memory DB regardless of ctx. Used in tests.
func MemDBProvider(*DBContext) (dbm.DB, error) {
	return dbm.NewMemDB(), nil
}
