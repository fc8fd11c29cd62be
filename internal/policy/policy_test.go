package policy

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/infrastructure/memstore"
	"github.com/zinrai/ddi-ipam-go/internal/members"
)

const membersJSON = `[
	{"name": "nios-1.example.com", "ipv4addr": "192.168.1.10"},
	{"name": "nios-2.example.com", "ipv4addr": "192.168.1.11"},
	{"name": "nios-3.example.com", "ipv4addr": "192.168.1.12"}
]`

type fixture struct {
	store *memstore.MemoryStore
	mgr   *members.Manager
}

func newFixture(t *testing.T) *fixture {
	reg, err := members.Load(strings.NewReader(membersJSON))
	require.NoError(t, err)
	store := memstore.NewMemoryStore()

	ctx := context.Background()
	require.NoError(t, store.CreateNetwork(ctx, &domain.Network{ID: "net-1", Name: "private", TenantID: "tenant-a"}))
	require.NoError(t, store.CreateNetwork(ctx, &domain.Network{ID: "net-ext", Name: "public", TenantID: "admin", External: true}))

	return &fixture{store: store, mgr: members.NewManager(reg, store)}
}

func (f *fixture) resolver(t *testing.T, rules string) *Resolver {
	parsed, err := LoadRules(strings.NewReader(rules))
	require.NoError(t, err)
	return NewResolver(parsed, f.mgr, f.store)
}

func subnet(id, cidr string) *domain.Subnet {
	return &domain.Subnet{ID: id, Name: "web", NetworkID: "net-1", TenantID: "tenant-a", CIDR: cidr}
}

func TestLoadRules(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		rules, err := LoadRules(strings.NewReader(`[{"condition": "global"}]`))
		require.NoError(t, err)
		require.Len(t, rules, 1)

		r := rules[0]
		assert.Equal(t, "default", r.NetworkView)
		assert.Equal(t, "default", r.DNSView)
		assert.True(t, r.DHCPMembers.NextAvailable)
		assert.True(t, r.DNSMembers.NextAvailable)
		assert.Equal(t, "global.com", r.DomainSuffixPattern)
		assert.Equal(t, "host-{ip_address}.{subnet_name}", r.HostnamePattern)
		assert.False(t, r.IsExternal)
	})

	t.Run("DNS members follow DHCP members", func(t *testing.T) {
		rules, err := LoadRules(strings.NewReader(`[{"condition": "tenant", "dhcp_members": ["m1", "m2"]}]`))
		require.NoError(t, err)
		assert.Equal(t, []string{"m1", "m2"}, rules[0].DNSMembers.Names)
		assert.False(t, rules[0].DNSMembers.Single)
	})

	tests := []struct {
		name  string
		rules string
		msg   string
	}{
		{"Unknown condition", `[{"condition": "everything"}]`, "Invalid condition specified: everything"},
		{"Unknown variable condition", `[{"condition": "network_id:abc"}]`, "Invalid condition specified: network_id:abc"},
		{"Empty variable value", `[{"condition": "tenant_id:"}]`, "Invalid condition specified: tenant_id:"},
		{"Missing condition", `[{"network_view": "x"}]`, "Missing mandatory 'condition' option"},
		{"Unknown network view template", `[{"condition": "global", "network_view": "{subnet_id}"}]`, "Invalid value for 'network_view': {subnet_id}"},
		{"Template without members", `[{"condition": "global", "dhcp_members": [], "network_template": "tmpl"}]`, "Member MUST be configured for tmpl"},
		{"Empty member list", `[{"condition": "global", "dns_members": []}]`, "dns_members must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRules(strings.NewReader(tt.rules))
			var cfgErr *domain.ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.msg, cfgErr.Msg)
		})
	}

	t.Run("Bad conditions fail before later rules are read", func(t *testing.T) {
		_, err := LoadRules(strings.NewReader(`[{"condition": "global"}, {"condition": "bogus"}]`))
		assert.Error(t, err)
	})

	t.Run("Undecodable entry", func(t *testing.T) {
		_, err := decodeRule(3, map[string]json.RawMessage{"condition": json.RawMessage(`{"unterminated"`)})
		var cfgErr *domain.ConfigError
		require.True(t, errors.As(err, &cfgErr), "got %v", err)
		assert.Contains(t, cfgErr.Msg, "invalid rule 3")
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadRulesFile("/nonexistent/conditional.json")
		var notFound *domain.ConfigNotFoundError
		assert.True(t, errors.As(err, &notFound))
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("First match in file order", func(t *testing.T) {
		r := f.resolver(t, `[
			{"condition": "subnet_range:10.9.0.0/24", "network_view": "nine"},
			{"condition": "tenant_id:tenant-a", "network_view": "tenant-view"},
			{"condition": "global", "network_view": "global-view"}
		]`)
		p, err := r.Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
		require.NoError(t, err)
		assert.Equal(t, "tenant_id:tenant-a", p.Condition)

		p, err = r.Resolve(ctx, subnet("sub-2", "10.9.0.0/24"))
		require.NoError(t, err)
		assert.Equal(t, "subnet_range:10.9.0.0/24", p.Condition)
	})

	t.Run("Reordering non matching rules keeps the result", func(t *testing.T) {
		a := f.resolver(t, `[
			{"condition": "tenant_id:other"},
			{"condition": "subnet_range:10.9.0.0/24"},
			{"condition": "tenant", "network_view": "picked"}
		]`)
		b := f.resolver(t, `[
			{"condition": "subnet_range:10.9.0.0/24"},
			{"condition": "tenant_id:other"},
			{"condition": "tenant", "network_view": "picked"}
		]`)
		pa, err := a.Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
		require.NoError(t, err)
		pb, err := b.Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
		require.NoError(t, err)
		assert.True(t, pa.Equal(pb))
	})

	t.Run("External flag must match", func(t *testing.T) {
		r := f.resolver(t, `[
			{"condition": "global", "is_external": true, "network_view": "ext"},
			{"condition": "global", "network_view": "int"}
		]`)
		p, err := r.Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
		require.NoError(t, err)
		assert.Equal(t, "int", p.Rule.NetworkView)

		ext := subnet("sub-ext", "172.16.0.0/24")
		ext.NetworkID = "net-ext"
		p, err = r.Resolve(ctx, ext)
		require.NoError(t, err)
		assert.Equal(t, "ext", p.Rule.NetworkView)
	})

	t.Run("No rule matches", func(t *testing.T) {
		r := f.resolver(t, `[{"condition": "tenant_id:other"}]`)
		_, err := r.Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
		var noConfig *domain.NoConfigForSubnetError
		require.True(t, errors.As(err, &noConfig))
		assert.Equal(t, "sub-1", noConfig.SubnetID)
		assert.Equal(t, "10.0.0.0/24", noConfig.CIDR)
	})
}

func TestViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name        string
		rules       string
		networkView string
		dnsView     string
	}{
		{"Default view keeps the DNS view literal", `[{"condition": "global", "dns_view": "internal"}]`, "default", "internal"},
		{"Literal view qualifies the DNS view", `[{"condition": "global", "network_view": "tenantA", "dns_view": "internal"}]`, "tenantA", "internal.tenantA"},
		{"Tenant template", `[{"condition": "global", "network_view": "{tenant_id}"}]`, "tenant-a", "default.tenant-a"},
		{"Network id template", `[{"condition": "global", "network_view": "{network_id}"}]`, "net-1", "default.net-1"},
		{"Network name template", `[{"condition": "global", "network_view": "{network_name}", "dns_view": "dv"}]`, "private", "dv.private"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.resolver(t, tt.rules).Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
			require.NoError(t, err)

			view, err := p.NetworkView(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.networkView, view)

			dnsView, err := p.DNSView(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.dnsView, dnsView)
		})
	}

	t.Run("Network view is memoized", func(t *testing.T) {
		p, err := f.resolver(t, `[{"condition": "global", "network_view": "{network_name}"}]`).Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
		require.NoError(t, err)
		view, err := p.NetworkView(ctx)
		require.NoError(t, err)
		assert.Equal(t, "private", view)

		require.NoError(t, f.store.DeleteNetwork(ctx, "net-1"))
		defer func() {
			require.NoError(t, f.store.CreateNetwork(ctx, &domain.Network{ID: "net-1", Name: "private", TenantID: "tenant-a"}))
		}()

		view, err = p.NetworkView(ctx)
		require.NoError(t, err)
		assert.Equal(t, "private", view)
	})
}

func TestReserveMembers(t *testing.T) {
	ctx := context.Background()

	t.Run("Next available", func(t *testing.T) {
		f := newFixture(t)
		p, err := f.resolver(t, `[{"condition": "global", "network_view": "view-a"}]`).Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
		require.NoError(t, err)

		_, err = p.DHCPMembers(ctx)
		var notReserved *domain.MembersNotReservedError
		require.True(t, errors.As(err, &notReserved))
		assert.Equal(t, "view-a", notReserved.Scope)

		dhcp, err := p.ReserveDHCPMembers(ctx)
		require.NoError(t, err)
		require.Len(t, dhcp, 1)
		assert.Equal(t, "nios-1.example.com", dhcp[0].Name)
		assert.Equal(t, "view-a", dhcp[0].MapID)

		again, err := p.ReserveDHCPMembers(ctx)
		require.NoError(t, err)
		assert.Equal(t, dhcp, again)

		read, err := p.DHCPMembers(ctx)
		require.NoError(t, err)
		assert.Equal(t, dhcp, read)

		dns, err := p.ReserveDNSMembers(ctx)
		require.NoError(t, err)
		assert.Equal(t, "nios-1.example.com", dns[0].Name)
	})

	t.Run("Explicit list reserves every member", func(t *testing.T) {
		f := newFixture(t)
		p, err := f.resolver(t, `[{"condition": "global", "network_view": "view-a",
			"dhcp_members": ["nios-2.example.com", "nios-3.example.com"]}]`).Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
		require.NoError(t, err)

		dhcp, err := p.ReserveDHCPMembers(ctx)
		require.NoError(t, err)
		require.Len(t, dhcp, 2)

		read, err := p.DHCPMembers(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"nios-2.example.com", "nios-3.example.com"}, []string{read[0].Name, read[1].Name})
	})

	t.Run("Template reserves the named member", func(t *testing.T) {
		f := newFixture(t)
		p, err := f.resolver(t, `[{"condition": "global", "network_view": "view-a",
			"network_template": "dhcp-template", "dhcp_members": "nios-3.example.com",
			"ns_group": "group-1", "dns_members": "nios-2.example.com"}]`).Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
		require.NoError(t, err)

		dhcp, err := p.ReserveDHCPMembers(ctx)
		require.NoError(t, err)
		require.Len(t, dhcp, 1)
		assert.Equal(t, "nios-3.example.com", dhcp[0].Name)

		dns, err := p.ReserveDNSMembers(ctx)
		require.NoError(t, err)
		require.Len(t, dns, 1)
		assert.Equal(t, "nios-2.example.com", dns[0].Name)
	})

	t.Run("Unknown named member", func(t *testing.T) {
		f := newFixture(t)
		p, err := f.resolver(t, `[{"condition": "global", "dhcp_members": ["nios-9.example.com"]}]`).Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
		require.NoError(t, err)

		_, err = p.ReserveDHCPMembers(ctx)
		var cfgErr *domain.ConfigError
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("Release", func(t *testing.T) {
		f := newFixture(t)
		p, err := f.resolver(t, `[{"condition": "global", "network_view": "view-a"}]`).Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
		require.NoError(t, err)

		held, err := p.HasReservations(ctx)
		require.NoError(t, err)
		assert.False(t, held)

		_, err = p.ReserveDHCPMembers(ctx)
		require.NoError(t, err)
		held, err = p.HasReservations(ctx)
		require.NoError(t, err)
		assert.True(t, held)

		require.NoError(t, p.ReleaseMembers(ctx))

		_, err = p.DHCPMembers(ctx)
		var notReserved *domain.MembersNotReservedError
		assert.True(t, errors.As(err, &notReserved))
		held, err = p.HasReservations(ctx)
		require.NoError(t, err)
		assert.False(t, held)
	})
}

func TestVerifySubnetUpdateAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.resolver(t, `[{"condition": "global", "domain_suffix_pattern": "{subnet_name}.{network_name}.cloud"}]`).Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
	require.NoError(t, err)

	renamed := subnet("sub-1", "10.0.0.0/24")
	renamed.Name = "db"
	var notAllowed *domain.OperationNotAllowedError
	assert.True(t, errors.As(p.VerifySubnetUpdateAllowed(renamed), &notAllowed))
	assert.NoError(t, p.VerifySubnetUpdateAllowed(subnet("sub-1", "10.0.0.0/24")))

	assert.True(t, errors.As(p.VerifyNetworkRenameAllowed("private", "public"), &notAllowed))
	assert.NoError(t, p.VerifyNetworkRenameAllowed("private", "private"))

	p, err = f.resolver(t, `[{"condition": "global"}]`).Resolve(ctx, subnet("sub-1", "10.0.0.0/24"))
	require.NoError(t, err)
	assert.NoError(t, p.VerifySubnetUpdateAllowed(renamed))
}

func TestPatternBuilder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := subnet("sub-1", "10.0.0.0/24")

	tests := []struct {
		name  string
		parts []string
		opts  BuildOptions
		want  string
	}{
		{"Host name", []string{"host-{ip_address}", "{subnet_name}.cloud."}, BuildOptions{IPAddress: "10.0.0.5"}, "host-10-0-0-5.web.cloud"},
		{"Octets", []string{"{ip_address_octet4}-{ip_address_octet3}"}, BuildOptions{IPAddress: "10.0.7.5"}, "5-7"},
		{"Network and tenant", []string{"{network_name}.{tenant_id}"}, BuildOptions{}, "private.tenant-a"},
		{"Port", []string{"{instance_name}-{port_id}", "{instance_id}"}, BuildOptions{Port: &domain.Port{ID: "p1", DeviceID: "vm-1", InstanceName: "web01"}}, "web01-p1.vm-1"},
		{"Empty parts", []string{"", ".zone."}, BuildOptions{}, "zone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPatternBuilder(f.store, tt.parts...).Build(ctx, sub, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("Subnet id replaces an empty name", func(t *testing.T) {
		unnamed := subnet("sub-1", "10.0.0.0/24")
		unnamed.Name = ""
		got, err := NewPatternBuilder(f.store, "{subnet_name}").Build(ctx, unnamed, BuildOptions{})
		require.NoError(t, err)
		assert.Equal(t, "sub-1", got)
	})

	t.Run("Double dot", func(t *testing.T) {
		_, err := NewPatternBuilder(f.store, "a..b").Build(ctx, sub, BuildOptions{})
		var invalid *domain.InvalidPatternError
		assert.True(t, errors.As(err, &invalid))
	})

	t.Run("Address placeholder without an address", func(t *testing.T) {
		_, err := NewPatternBuilder(f.store, "host-{ip_address}").Build(ctx, sub, BuildOptions{})
		var invalid *domain.InvalidPatternError
		require.True(t, errors.As(err, &invalid))
		assert.Contains(t, invalid.Msg, "ip_address")
	})
}
