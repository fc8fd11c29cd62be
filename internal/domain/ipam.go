package domain

import (
	"strings"
)

// MemberType is the kind of service a member provides to a scope.
type MemberType string

const (
	DHCPMember MemberType = "dhcp"
	DNSMember  MemberType = "dns"
)

// NextAvailableMember is the member spec sentinel asking for the first
// unreserved member of the registry.
const NextAvailableMember = "<next-available-member>"

// DefaultView is the historical network view and DNS view name.
const DefaultView = "default"

// Member is a DHCP or DNS capable server of the appliance fleet.
type Member struct {
	Name     string `json:"name"`
	IPv4Addr string `json:"ipv4addr"`
	IPv6Addr string `json:"ipv6addr,omitempty"`
	MapID    string `json:"map_id,omitempty"`
	Delegate bool   `json:"delegate,omitempty"`
}

// MemberMapping binds a member to a scope for one member type.
// Exclusive mappings come from next-available reservations and hold the
// member for a single scope.
type MemberMapping struct {
	MapID      string
	MemberName string
	Type       MemberType
	Exclusive  bool
}

// Range is an inclusive address interval of a subnet allocation pool.
type Range struct {
	FirstIP string `json:"first_ip"`
	LastIP  string `json:"last_ip"`
}

func (r Range) String() string {
	return r.FirstIP + "-" + r.LastIP
}

type Network struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TenantID    string `json:"tenant_id"`
	External    bool   `json:"router_external"`
	NetworkView string `json:"network_view,omitempty"`
}

type Subnet struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	NetworkID       string   `json:"network_id"`
	TenantID        string   `json:"tenant_id"`
	CIDR            string   `json:"cidr"`
	GatewayIP       string   `json:"gateway_ip"`
	AllocationPools []Range  `json:"allocation_pools"`
	DNSNameservers  []string `json:"dns_nameservers"`
	// NetworkView is the network view the subnet was provisioned in.
	NetworkView string `json:"network_view,omitempty"`
}

// DisplayName returns the subnet name, falling back to its id.
func (s *Subnet) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// Port is the consumer of an allocated address.
type Port struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	MACAddress   string `json:"mac_address"`
	DeviceID     string `json:"device_id"`
	DeviceOwner  string `json:"device_owner"`
	InstanceName string `json:"instance_name,omitempty"`
}

// IPAllocation is the persisted record of an address handed out from a subnet.
type IPAllocation struct {
	SubnetID   string `json:"subnet_id"`
	Address    string `json:"address"`
	Hostname   string `json:"hostname"`
	MACAddress string `json:"mac_address"`
	PortID     string `json:"port_id"`
}

// Allocation is the address returned by an allocation strategy and the
// backend objects holding it.
type Allocation struct {
	Address         string   `json:"address"`
	HostRecordRef   string   `json:"host_record_ref,omitempty"`
	FixedAddressRef string   `json:"fixed_address_ref,omitempty"`
	DNSRecordRefs   []string `json:"dns_record_refs,omitempty"`
}

// ExtAttrs are extensible attributes attached to backend objects.
type ExtAttrs map[string]string

// HostAddress is one address entry of a host record.
type HostAddress struct {
	Ref              string `json:"_ref,omitempty"`
	Address          string `json:"address"`
	MAC              string `json:"mac,omitempty"`
	Host             string `json:"host,omitempty"`
	ConfigureForDHCP bool   `json:"configure_for_dhcp"`
}

// HostRecord binds one DNS name to one or more addresses.
type HostRecord struct {
	Ref       string        `json:"_ref,omitempty"`
	Name      string        `json:"name"`
	DNSView   string        `json:"view"`
	Addresses []HostAddress `json:"addresses"`
	ExtAttrs  ExtAttrs      `json:"extattrs,omitempty"`
}

// HasAddress reports whether ip is attached to the record.
func (h *HostRecord) HasAddress(ip string) bool {
	return h.Address(ip) != nil
}

// Address returns the entry for ip, or nil.
func (h *HostRecord) Address(ip string) *HostAddress {
	for i := range h.Addresses {
		if h.Addresses[i].Address == ip {
			return &h.Addresses[i]
		}
	}
	return nil
}

// LastAddress returns the most recently attached address.
func (h *HostRecord) LastAddress() string {
	if len(h.Addresses) == 0 {
		return ""
	}
	return h.Addresses[len(h.Addresses)-1].Address
}

// SameRecord compares two possibly nil records by identity.
func SameRecord(a, b *HostRecord) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Ref != "" || b.Ref != "" {
		return a.Ref == b.Ref
	}
	return a.Name == b.Name && a.DNSView == b.DNSView
}

// FixedAddress binds one address to a MAC without any DNS data.
type FixedAddress struct {
	Ref         string   `json:"_ref,omitempty"`
	Address     string   `json:"address"`
	MAC         string   `json:"mac,omitempty"`
	NetworkView string   `json:"network_view"`
	ExtAttrs    ExtAttrs `json:"extattrs,omitempty"`
}

const DNSNameserversOption = "domain-name-servers"

type DHCPOption struct {
	Name        string `json:"name"`
	Num         int    `json:"num,omitempty"`
	Value       string `json:"value"`
	UseOption   bool   `json:"use_option"`
	VendorClass string `json:"vendor_class,omitempty"`
}

// BackendNetwork is a network object on the appliance.
type BackendNetwork struct {
	Ref         string       `json:"_ref,omitempty"`
	NetworkView string       `json:"network_view"`
	CIDR        string       `json:"network"`
	MemberIPs   []string     `json:"member_ips,omitempty"`
	Options     []DHCPOption `json:"options,omitempty"`
	ExtAttrs    ExtAttrs     `json:"extattrs,omitempty"`
}

// DNSNameservers returns the nameservers of the domain-name-servers option.
// An option present with use_option unset carries no nameservers.
func (n *BackendNetwork) DNSNameservers() []string {
	for _, opt := range n.Options {
		if opt.Name == DNSNameserversOption {
			if opt.UseOption && opt.Value != "" {
				return strings.Split(opt.Value, ",")
			}
			return nil
		}
	}
	return nil
}

func (n *BackendNetwork) SetDNSNameservers(servers []string) {
	for i := range n.Options {
		if n.Options[i].Name != DNSNameserversOption {
			continue
		}
		if len(servers) > 0 {
			n.Options[i].Value = strings.Join(servers, ",")
			n.Options[i].UseOption = true
		} else {
			n.Options[i].UseOption = false
		}
		return
	}
	if len(servers) > 0 {
		n.Options = append(n.Options, DHCPOption{
			Name:      DNSNameserversOption,
			Value:     strings.Join(servers, ","),
			UseOption: true,
		})
	}
}

func (n *BackendNetwork) HasDNSOption() bool {
	for _, opt := range n.Options {
		if opt.Name == DNSNameserversOption {
			return true
		}
	}
	return false
}

// ReplaceMemberNameservers puts relayIP first and drops member addresses
// from the domain-name-servers option.
func (n *BackendNetwork) ReplaceMemberNameservers(relayIP string) {
	isMember := func(ip string) bool {
		for _, m := range n.MemberIPs {
			if m == ip {
				return true
			}
		}
		return false
	}
	for i := range n.Options {
		if n.Options[i].Name != DNSNameserversOption {
			continue
		}
		values := append([]string{relayIP}, strings.Split(n.Options[i].Value, ",")...)
		kept := values[:0]
		for _, v := range values {
			if v != "" && !isMember(v) {
				kept = append(kept, v)
			}
		}
		n.Options[i].Value = strings.Join(kept, ",")
		return
	}
}
