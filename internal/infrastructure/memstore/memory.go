package memstore

import (
	memdb "github.com/hashicorp/go-memdb"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

var (
	_ domain.NetworkRepository       = (*MemoryStore)(nil)
	_ domain.MemberMappingRepository = (*MemoryStore)(nil)
)

const (
	tableMapping    = "member_mapping"
	tableNetwork    = "network"
	tableSubnet     = "subnet"
	tableAllocation = "allocation"
	tableServers    = "network_servers"

	indexID         = "id"
	indexScopeType  = "scope_type"
	indexMemberType = "member_type"
	indexType       = "type"
	indexView       = "view"
	indexNetworkID  = "networkid"
	indexSubnetID   = "subnetid"
)

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableMapping: {
			Name: tableMapping,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:   indexID,
					Unique: true,
					Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
						&memdb.StringFieldIndex{Field: "MapID"},
						&memdb.StringFieldIndex{Field: "MemberName"},
						&memdb.StringFieldIndex{Field: "Type"},
					}},
				},
				indexScopeType: {
					Name: indexScopeType,
					Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
						&memdb.StringFieldIndex{Field: "MapID"},
						&memdb.StringFieldIndex{Field: "Type"},
					}},
				},
				indexMemberType: {
					Name: indexMemberType,
					Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
						&memdb.StringFieldIndex{Field: "MemberName"},
						&memdb.StringFieldIndex{Field: "Type"},
					}},
				},
				indexType: {
					Name:    indexType,
					Indexer: &memdb.StringFieldIndex{Field: "Type"},
				},
			},
		},
		tableNetwork: {
			Name: tableNetwork,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				indexView: {
					Name:         indexView,
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "NetworkView"},
				},
			},
		},
		tableSubnet: {
			Name: tableSubnet,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				indexNetworkID: {
					Name:    indexNetworkID,
					Indexer: &memdb.StringFieldIndex{Field: "NetworkID"},
				},
				indexView: {
					Name:         indexView,
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "NetworkView"},
				},
			},
		},
		tableAllocation: {
			Name: tableAllocation,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:   indexID,
					Unique: true,
					Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
						&memdb.StringFieldIndex{Field: "SubnetID"},
						&memdb.StringFieldIndex{Field: "Address"},
					}},
				},
				indexSubnetID: {
					Name:    indexSubnetID,
					Indexer: &memdb.StringFieldIndex{Field: "SubnetID"},
				},
			},
		},
		tableServers: {
			Name: tableServers,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:   indexID,
					Unique: true,
					Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
						&memdb.StringFieldIndex{Field: "NetworkID"},
						&memdb.StringFieldIndex{Field: "Type"},
					}},
				},
				indexNetworkID: {
					Name:    indexNetworkID,
					Indexer: &memdb.StringFieldIndex{Field: "NetworkID"},
				},
			},
		},
	},
}

// MemoryStore is a concurrency-safe, in-memory implementation of the
// mapping and network repositories. Write transactions are serialized by
// go-memdb, which makes every check-then-insert atomic.
type MemoryStore struct {
	memDB *memdb.MemDB
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		// This shouldn't fail
		panic(err)
	}
	return &MemoryStore{memDB: memDB}
}

// update runs cb in a write transaction, committing when it returns nil.
func (s *MemoryStore) update(cb func(txn *memdb.Txn) error) error {
	txn := s.memDB.Txn(true)
	if err := cb(txn); err != nil {
		txn.Abort()
		return err
	}
	txn.Commit()
	return nil
}

// view runs cb in a read transaction.
func (s *MemoryStore) view(cb func(txn *memdb.Txn) error) error {
	txn := s.memDB.Txn(false)
	defer txn.Abort()
	return cb(txn)
}

func collect(it memdb.ResultIterator, err error) ([]interface{}, error) {
	if err != nil {
		return nil, err
	}
	var out []interface{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, obj)
	}
	return out, nil
}
