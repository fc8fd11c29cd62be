package memstore

import (
	"context"
	"sort"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

type serversEntry struct {
	NetworkID string
	Type      string
	Servers   []string
}

func copyNetwork(n *domain.Network) *domain.Network {
	c := *n
	return &c
}

func copySubnet(s *domain.Subnet) *domain.Subnet {
	c := *s
	c.AllocationPools = append([]domain.Range(nil), s.AllocationPools...)
	c.DNSNameservers = append([]string(nil), s.DNSNameservers...)
	return &c
}

func (s *MemoryStore) CreateNetwork(ctx context.Context, network *domain.Network) error {
	return s.update(func(txn *memdb.Txn) error {
		existing, err := txn.First(tableNetwork, indexID, network.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.Wrapf(domain.ErrConflict, "network %s already exists", network.ID)
		}
		return txn.Insert(tableNetwork, copyNetwork(network))
	})
}

func (s *MemoryStore) GetNetwork(ctx context.Context, id string) (*domain.Network, error) {
	var network *domain.Network
	err := s.view(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableNetwork, indexID, id)
		if err != nil || obj == nil {
			return err
		}
		network = copyNetwork(obj.(*domain.Network))
		return nil
	})
	return network, err
}

func (s *MemoryStore) ListNetworks(ctx context.Context) ([]*domain.Network, error) {
	var networks []*domain.Network
	err := s.view(func(txn *memdb.Txn) error {
		objs, err := collect(txn.Get(tableNetwork, indexID))
		if err != nil {
			return err
		}
		for _, obj := range objs {
			networks = append(networks, copyNetwork(obj.(*domain.Network)))
		}
		return nil
	})
	return networks, err
}

func (s *MemoryStore) UpdateNetwork(ctx context.Context, network *domain.Network) error {
	return s.update(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableNetwork, indexID, network.ID)
		if err != nil {
			return err
		}
		if obj == nil {
			return errors.Wrapf(domain.ErrNotFound, "network %s", network.ID)
		}
		return txn.Insert(tableNetwork, copyNetwork(network))
	})
}

func (s *MemoryStore) SetNetworkView(ctx context.Context, networkID, view string) error {
	return s.update(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableNetwork, indexID, networkID)
		if err != nil {
			return err
		}
		if obj == nil {
			return errors.Wrapf(domain.ErrNotFound, "network %s", networkID)
		}
		network := copyNetwork(obj.(*domain.Network))
		network.NetworkView = view
		return txn.Insert(tableNetwork, network)
	})
}

func (s *MemoryStore) DeleteNetwork(ctx context.Context, id string) error {
	return s.update(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableNetwork, indexID, id)
		if err != nil {
			return err
		}
		if obj == nil {
			return errors.Wrapf(domain.ErrNotFound, "network %s", id)
		}
		if _, err := txn.DeleteAll(tableServers, indexNetworkID, id); err != nil {
			return err
		}
		return txn.Delete(tableNetwork, obj)
	})
}

func (s *MemoryStore) CreateSubnet(ctx context.Context, subnet *domain.Subnet) error {
	return s.update(func(txn *memdb.Txn) error {
		network, err := txn.First(tableNetwork, indexID, subnet.NetworkID)
		if err != nil {
			return err
		}
		if network == nil {
			return errors.Wrapf(domain.ErrNotFound, "network %s", subnet.NetworkID)
		}
		existing, err := txn.First(tableSubnet, indexID, subnet.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.Wrapf(domain.ErrConflict, "subnet %s already exists", subnet.ID)
		}
		return txn.Insert(tableSubnet, copySubnet(subnet))
	})
}

func (s *MemoryStore) GetSubnet(ctx context.Context, id string) (*domain.Subnet, error) {
	var subnet *domain.Subnet
	err := s.view(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableSubnet, indexID, id)
		if err != nil || obj == nil {
			return err
		}
		subnet = copySubnet(obj.(*domain.Subnet))
		return nil
	})
	return subnet, err
}

func (s *MemoryStore) UpdateSubnet(ctx context.Context, subnet *domain.Subnet) error {
	return s.update(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableSubnet, indexID, subnet.ID)
		if err != nil {
			return err
		}
		if obj == nil {
			return errors.Wrapf(domain.ErrNotFound, "subnet %s", subnet.ID)
		}
		return txn.Insert(tableSubnet, copySubnet(subnet))
	})
}

func (s *MemoryStore) ListSubnets(ctx context.Context, networkID string) ([]*domain.Subnet, error) {
	var subnets []*domain.Subnet
	err := s.view(func(txn *memdb.Txn) error {
		objs, err := collect(txn.Get(tableSubnet, indexNetworkID, networkID))
		if err != nil {
			return err
		}
		for _, obj := range objs {
			subnets = append(subnets, copySubnet(obj.(*domain.Subnet)))
		}
		return nil
	})
	sort.Slice(subnets, func(i, j int) bool { return subnets[i].ID < subnets[j].ID })
	return subnets, err
}

func (s *MemoryStore) DeleteSubnet(ctx context.Context, id string) error {
	return s.update(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableSubnet, indexID, id)
		if err != nil {
			return err
		}
		if obj == nil {
			return errors.Wrapf(domain.ErrNotFound, "subnet %s", id)
		}
		if _, err := txn.DeleteAll(tableAllocation, indexSubnetID, id); err != nil {
			return err
		}
		return txn.Delete(tableSubnet, obj)
	})
}

func (s *MemoryStore) CountSubnetsInView(ctx context.Context, view, excludeSubnetID string) (int, error) {
	count := 0
	err := s.view(func(txn *memdb.Txn) error {
		subnets, err := collect(txn.Get(tableSubnet, indexView, view))
		if err != nil {
			return err
		}
		for _, sub := range subnets {
			if sub.(*domain.Subnet).ID != excludeSubnetID {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (s *MemoryStore) RecordAllocation(ctx context.Context, alloc *domain.IPAllocation) error {
	return s.update(func(txn *memdb.Txn) error {
		existing, err := txn.First(tableAllocation, indexID, alloc.SubnetID, alloc.Address)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.Wrapf(domain.ErrConflict, "IP address %s is already allocated", alloc.Address)
		}
		c := *alloc
		return txn.Insert(tableAllocation, &c)
	})
}

func (s *MemoryStore) DeleteAllocation(ctx context.Context, subnetID, address string) error {
	return s.update(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableAllocation, indexID, subnetID, address)
		if err != nil {
			return err
		}
		if obj == nil {
			return errors.Wrapf(domain.ErrNotFound, "IP address %s", address)
		}
		return txn.Delete(tableAllocation, obj)
	})
}

func (s *MemoryStore) ListAllocations(ctx context.Context, subnetID string) ([]*domain.IPAllocation, error) {
	var allocs []*domain.IPAllocation
	err := s.view(func(txn *memdb.Txn) error {
		objs, err := collect(txn.Get(tableAllocation, indexSubnetID, subnetID))
		if err != nil {
			return err
		}
		for _, obj := range objs {
			c := *obj.(*domain.IPAllocation)
			allocs = append(allocs, &c)
		}
		return nil
	})
	return allocs, err
}

func (s *MemoryStore) SetNetworkServers(ctx context.Context, networkID string, memberType domain.MemberType, servers []string) error {
	return s.update(func(txn *memdb.Txn) error {
		return txn.Insert(tableServers, &serversEntry{
			NetworkID: networkID,
			Type:      string(memberType),
			Servers:   append([]string(nil), servers...),
		})
	})
}

func (s *MemoryStore) NetworkServers(ctx context.Context, networkID string, memberType domain.MemberType) ([]string, error) {
	var servers []string
	err := s.view(func(txn *memdb.Txn) error {
		obj, err := txn.First(tableServers, indexID, networkID, string(memberType))
		if err != nil || obj == nil {
			return err
		}
		servers = append(servers, obj.(*serversEntry).Servers...)
		return nil
	})
	return servers, err
}

func (s *MemoryStore) DeleteNetworkServers(ctx context.Context, networkID string) error {
	return s.update(func(txn *memdb.Txn) error {
		_, err := txn.DeleteAll(tableServers, indexNetworkID, networkID)
		return err
	})
}
