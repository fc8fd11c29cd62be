package main

import (
	"github.com/pkg/errors"

	"github.com/zinrai/ddi-ipam-go/internal/config"
	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/infrastructure/db"
	"github.com/zinrai/ddi-ipam-go/internal/infrastructure/directory/memory"
	"github.com/zinrai/ddi-ipam-go/internal/infrastructure/directory/wapi"
	"github.com/zinrai/ddi-ipam-go/internal/infrastructure/memstore"
	"github.com/zinrai/ddi-ipam-go/internal/infrastructure/persistence"
)

// store is a repository serving both networks and member mappings.
type store interface {
	domain.NetworkRepository
	domain.MemberMappingRepository
}

// openStore returns the configured repository and a function closing it.
func openStore(cfg config.StorageConfig) (store, func() error, error) {
	if cfg.Driver == config.StorageMemory {
		return memstore.NewMemoryStore(), func() error { return nil }, nil
	}

	database, err := db.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open database")
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, errors.Wrap(err, "failed to migrate database")
	}
	return persistence.NewIPAMRepository(database), database.Close, nil
}

func newDirectory(cfg *config.Config) domain.DirectoryService {
	if cfg.Directory.Driver == config.DirectoryWAPI {
		return wapi.New(cfg.Directory, cfg.Allocation.ConfigureForDHCP)
	}
	return memory.New(cfg.Allocation.ConfigureForDHCP)
}
