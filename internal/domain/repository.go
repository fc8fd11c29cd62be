package domain

import (
	"context"
)

// MemberMappingRepository persists member reservations. It is the only
// writer of mapping rows.
type MemberMappingRepository interface {
	// InsertMapping stores a shared mapping. Inserting an existing
	// (map id, member, type) row is a no-op.
	InsertMapping(ctx context.Context, m MemberMapping) error
	// InsertExclusiveMapping stores m only if the scope has no mapping of
	// that type yet. It returns false when another writer already mapped the
	// scope, and an error matching ErrConflict when the member is held
	// exclusively by another scope.
	InsertExclusiveMapping(ctx context.Context, m MemberMapping) (bool, error)
	FindMappings(ctx context.Context, mapID string, memberType MemberType) ([]string, error)
	DeleteMappings(ctx context.Context, mapID string) error
	// UsedMembers returns the distinct member names mapped for memberType
	// in any scope.
	UsedMembers(ctx context.Context, memberType MemberType) ([]string, error)
}

// NetworkRepository persists the networks, subnets and address
// allocations the orchestrator works on.
type NetworkRepository interface {
	CreateNetwork(ctx context.Context, network *Network) error
	GetNetwork(ctx context.Context, id string) (*Network, error)
	ListNetworks(ctx context.Context) ([]*Network, error)
	UpdateNetwork(ctx context.Context, network *Network) error
	SetNetworkView(ctx context.Context, networkID, view string) error
	DeleteNetwork(ctx context.Context, id string) error

	CreateSubnet(ctx context.Context, subnet *Subnet) error
	GetSubnet(ctx context.Context, id string) (*Subnet, error)
	UpdateSubnet(ctx context.Context, subnet *Subnet) error
	ListSubnets(ctx context.Context, networkID string) ([]*Subnet, error)
	DeleteSubnet(ctx context.Context, id string) error
	// CountSubnetsInView counts subnets provisioned in network view,
	// not counting excludeSubnetID.
	CountSubnetsInView(ctx context.Context, view, excludeSubnetID string) (int, error)

	RecordAllocation(ctx context.Context, alloc *IPAllocation) error
	DeleteAllocation(ctx context.Context, subnetID, address string) error
	ListAllocations(ctx context.Context, subnetID string) ([]*IPAllocation, error)

	SetNetworkServers(ctx context.Context, networkID string, memberType MemberType, servers []string) error
	NetworkServers(ctx context.Context, networkID string, memberType MemberType) ([]string, error)
	DeleteNetworkServers(ctx context.Context, networkID string) error
}
