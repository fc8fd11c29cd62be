package memstore

import (
	"context"
	"sort"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

func (s *MemoryStore) InsertMapping(ctx context.Context, m domain.MemberMapping) error {
	return s.update(func(txn *memdb.Txn) error {
		existing, err := txn.First(tableMapping, indexID, m.MapID, m.MemberName, string(m.Type))
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		m.Exclusive = false
		return txn.Insert(tableMapping, &m)
	})
}

func (s *MemoryStore) InsertExclusiveMapping(ctx context.Context, m domain.MemberMapping) (bool, error) {
	inserted := false
	err := s.update(func(txn *memdb.Txn) error {
		scoped, err := txn.First(tableMapping, indexScopeType, m.MapID, string(m.Type))
		if err != nil {
			return err
		}
		if scoped != nil {
			return nil
		}

		holders, err := collect(txn.Get(tableMapping, indexMemberType, m.MemberName, string(m.Type)))
		if err != nil {
			return err
		}
		for _, obj := range holders {
			if obj.(*domain.MemberMapping).Exclusive {
				return errors.Wrapf(domain.ErrConflict, "%s member %s is already reserved", m.Type, m.MemberName)
			}
		}

		m.Exclusive = true
		if err := txn.Insert(tableMapping, &m); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *MemoryStore) FindMappings(ctx context.Context, mapID string, memberType domain.MemberType) ([]string, error) {
	var names []string
	err := s.view(func(txn *memdb.Txn) error {
		objs, err := collect(txn.Get(tableMapping, indexScopeType, mapID, string(memberType)))
		if err != nil {
			return err
		}
		for _, obj := range objs {
			names = append(names, obj.(*domain.MemberMapping).MemberName)
		}
		return nil
	})
	return names, err
}

func (s *MemoryStore) DeleteMappings(ctx context.Context, mapID string) error {
	return s.update(func(txn *memdb.Txn) error {
		for _, t := range []domain.MemberType{domain.DHCPMember, domain.DNSMember} {
			if _, err := txn.DeleteAll(tableMapping, indexScopeType, mapID, string(t)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *MemoryStore) UsedMembers(ctx context.Context, memberType domain.MemberType) ([]string, error) {
	seen := make(map[string]bool)
	err := s.view(func(txn *memdb.Txn) error {
		objs, err := collect(txn.Get(tableMapping, indexType, string(memberType)))
		if err != nil {
			return err
		}
		for _, obj := range objs {
			seen[obj.(*domain.MemberMapping).MemberName] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
