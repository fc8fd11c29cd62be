package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

func TestMappings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	t.Run("Insert is idempotent", func(t *testing.T) {
		m := domain.MemberMapping{MapID: "view-a", MemberName: "m1", Type: domain.DHCPMember}
		require.NoError(t, s.InsertMapping(ctx, m))
		require.NoError(t, s.InsertMapping(ctx, m))

		names, err := s.FindMappings(ctx, "view-a", domain.DHCPMember)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, names)
	})

	t.Run("Exclusive insert loses to an existing scope mapping", func(t *testing.T) {
		ok, err := s.InsertExclusiveMapping(ctx, domain.MemberMapping{MapID: "view-a", MemberName: "m2", Type: domain.DHCPMember})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Exclusive member cannot be claimed twice", func(t *testing.T) {
		ok, err := s.InsertExclusiveMapping(ctx, domain.MemberMapping{MapID: "view-b", MemberName: "m2", Type: domain.DNSMember})
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = s.InsertExclusiveMapping(ctx, domain.MemberMapping{MapID: "view-c", MemberName: "m2", Type: domain.DNSMember})
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})

	t.Run("Used members are distinct per type", func(t *testing.T) {
		require.NoError(t, s.InsertMapping(ctx, domain.MemberMapping{MapID: "view-d", MemberName: "m1", Type: domain.DHCPMember}))
		used, err := s.UsedMembers(ctx, domain.DHCPMember)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, used)

		used, err = s.UsedMembers(ctx, domain.DNSMember)
		require.NoError(t, err)
		assert.Equal(t, []string{"m2"}, used)
	})

	t.Run("Delete removes both types", func(t *testing.T) {
		require.NoError(t, s.InsertMapping(ctx, domain.MemberMapping{MapID: "view-a", MemberName: "m3", Type: domain.DNSMember}))
		require.NoError(t, s.DeleteMappings(ctx, "view-a"))

		for _, mt := range []domain.MemberType{domain.DHCPMember, domain.DNSMember} {
			names, err := s.FindMappings(ctx, "view-a", mt)
			require.NoError(t, err)
			assert.Empty(t, names)
		}
		names, err := s.FindMappings(ctx, "view-d", domain.DHCPMember)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, names)
	})
}

func TestConcurrentExclusiveInsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.InsertExclusiveMapping(ctx, domain.MemberMapping{
				MapID:      "shared-view",
				MemberName: []string{"m1", "m2"}[i%2],
				Type:       domain.DHCPMember,
			})
			if err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	names, err := s.FindMappings(ctx, "shared-view", domain.DHCPMember)
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestNetworks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateNetwork(ctx, &domain.Network{ID: "net-1", Name: "private", TenantID: "t1"}))
	require.NoError(t, s.CreateNetwork(ctx, &domain.Network{ID: "net-2", Name: "other", TenantID: "t1"}))
	assert.True(t, errors.Is(s.CreateNetwork(ctx, &domain.Network{ID: "net-1"}), domain.ErrConflict))

	missing, err := s.GetNetwork(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.SetNetworkView(ctx, "net-1", "t1"))
	require.NoError(t, s.SetNetworkView(ctx, "net-2", "t1"))
	n, err := s.GetNetwork(ctx, "net-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", n.NetworkView)

	sub := &domain.Subnet{ID: "sub-1", NetworkID: "net-1", CIDR: "10.0.0.0/24", NetworkView: "t1",
		AllocationPools: []domain.Range{{FirstIP: "10.0.0.2", LastIP: "10.0.0.254"}}}
	require.NoError(t, s.CreateSubnet(ctx, sub))
	require.NoError(t, s.CreateSubnet(ctx, &domain.Subnet{ID: "sub-2", NetworkID: "net-2", CIDR: "10.0.1.0/24", NetworkView: "t1"}))
	require.NoError(t, s.CreateSubnet(ctx, &domain.Subnet{ID: "sub-4", NetworkID: "net-1", CIDR: "10.0.2.0/24"}))
	assert.True(t, errors.Is(s.CreateSubnet(ctx, &domain.Subnet{ID: "sub-3", NetworkID: "net-9"}), domain.ErrNotFound))

	count, err := s.CountSubnetsInView(ctx, "t1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The network row's view is not what subnets are counted by.
	count, err = s.CountSubnetsInView(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = s.CountSubnetsInView(ctx, "default", "")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	got, err := s.GetSubnet(ctx, "sub-1")
	require.NoError(t, err)
	got.AllocationPools[0].FirstIP = "10.0.0.9"
	again, err := s.GetSubnet(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", again.AllocationPools[0].FirstIP)

	require.NoError(t, s.RecordAllocation(ctx, &domain.IPAllocation{SubnetID: "sub-1", Address: "10.0.0.2", Hostname: "vm1"}))
	assert.True(t, errors.Is(s.RecordAllocation(ctx, &domain.IPAllocation{SubnetID: "sub-1", Address: "10.0.0.2"}), domain.ErrConflict))
	allocs, err := s.ListAllocations(ctx, "sub-1")
	require.NoError(t, err)
	assert.Len(t, allocs, 1)

	require.NoError(t, s.SetNetworkServers(ctx, "net-1", domain.DHCPMember, []string{"192.168.0.10"}))
	servers, err := s.NetworkServers(ctx, "net-1", domain.DHCPMember)
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.0.10"}, servers)

	require.NoError(t, s.DeleteSubnet(ctx, "sub-1"))
	allocs, err = s.ListAllocations(ctx, "sub-1")
	require.NoError(t, err)
	assert.Empty(t, allocs)

	require.NoError(t, s.DeleteNetwork(ctx, "net-1"))
	servers, err = s.NetworkServers(ctx, "net-1", domain.DHCPMember)
	require.NoError(t, err)
	assert.Empty(t, servers)
}
