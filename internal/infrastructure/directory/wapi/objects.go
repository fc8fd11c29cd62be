package wapi

import (
	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

const (
	hostFields    = "name,view,ipv4addrs,extattrs"
	fixedFields   = "ipv4addr,mac,network_view,extattrs"
	networkFields = "network,network_view,members,options,extattrs"
)

type extAttr struct {
	Value string `json:"value"`
}

type extAttrs map[string]extAttr

func toExtAttrs(attrs domain.ExtAttrs) extAttrs {
	if attrs == nil {
		return nil
	}
	out := make(extAttrs, len(attrs))
	for k, v := range attrs {
		out[k] = extAttr{Value: v}
	}
	return out
}

func fromExtAttrs(attrs extAttrs) domain.ExtAttrs {
	if attrs == nil {
		return nil
	}
	out := make(domain.ExtAttrs, len(attrs))
	for k, v := range attrs {
		out[k] = v.Value
	}
	return out
}

type hostAddr struct {
	Ref              string `json:"_ref,omitempty"`
	IPv4Addr         string `json:"ipv4addr"`
	MAC              string `json:"mac,omitempty"`
	Host             string `json:"host,omitempty"`
	ConfigureForDHCP bool   `json:"configure_for_dhcp"`
}

type hostRecord struct {
	Ref       string     `json:"_ref,omitempty"`
	Name      string     `json:"name"`
	View      string     `json:"view"`
	IPv4Addrs []hostAddr `json:"ipv4addrs"`
	ExtAttrs  extAttrs   `json:"extattrs,omitempty"`
}

func (h *hostRecord) toDomain() *domain.HostRecord {
	record := &domain.HostRecord{
		Ref:      h.Ref,
		Name:     h.Name,
		DNSView:  h.View,
		ExtAttrs: fromExtAttrs(h.ExtAttrs),
	}
	for _, a := range h.IPv4Addrs {
		record.Addresses = append(record.Addresses, domain.HostAddress{
			Ref:              a.Ref,
			Address:          a.IPv4Addr,
			MAC:              a.MAC,
			Host:             a.Host,
			ConfigureForDHCP: a.ConfigureForDHCP,
		})
	}
	return record
}

// addrsOf rebuilds the address list of record for an update. Refs and
// host names are read-only on the appliance.
func addrsOf(record *domain.HostRecord) []hostAddr {
	addrs := make([]hostAddr, 0, len(record.Addresses))
	for _, a := range record.Addresses {
		addrs = append(addrs, hostAddr{
			IPv4Addr:         a.Address,
			MAC:              a.MAC,
			ConfigureForDHCP: a.ConfigureForDHCP,
		})
	}
	return addrs
}

type fixedAddress struct {
	Ref         string   `json:"_ref,omitempty"`
	IPv4Addr    string   `json:"ipv4addr"`
	MAC         string   `json:"mac"`
	NetworkView string   `json:"network_view"`
	ExtAttrs    extAttrs `json:"extattrs,omitempty"`
}

func (f *fixedAddress) toDomain() *domain.FixedAddress {
	return &domain.FixedAddress{
		Ref:         f.Ref,
		Address:     f.IPv4Addr,
		MAC:         f.MAC,
		NetworkView: f.NetworkView,
		ExtAttrs:    fromExtAttrs(f.ExtAttrs),
	}
}

type dhcpMember struct {
	Struct   string `json:"_struct"`
	Name     string `json:"name,omitempty"`
	IPv4Addr string `json:"ipv4addr,omitempty"`
}

func toDHCPMembers(members []domain.Member) []dhcpMember {
	out := make([]dhcpMember, 0, len(members))
	for _, m := range members {
		out = append(out, dhcpMember{Struct: "dhcpmember", Name: m.Name, IPv4Addr: m.IPv4Addr})
	}
	return out
}

type network struct {
	Ref         string              `json:"_ref,omitempty"`
	Network     string              `json:"network"`
	NetworkView string              `json:"network_view"`
	Template    string              `json:"template,omitempty"`
	Members     []dhcpMember        `json:"members,omitempty"`
	Options     []domain.DHCPOption `json:"options,omitempty"`
	ExtAttrs    extAttrs            `json:"extattrs,omitempty"`
}

func (n *network) toDomain() *domain.BackendNetwork {
	backend := &domain.BackendNetwork{
		Ref:         n.Ref,
		NetworkView: n.NetworkView,
		CIDR:        n.Network,
		Options:     n.Options,
		ExtAttrs:    fromExtAttrs(n.ExtAttrs),
	}
	for _, m := range n.Members {
		if m.IPv4Addr != "" {
			backend.MemberIPs = append(backend.MemberIPs, m.IPv4Addr)
		}
	}
	return backend
}

type ipRange struct {
	Ref         string      `json:"_ref,omitempty"`
	NetworkView string      `json:"network_view"`
	Network     string      `json:"network"`
	StartAddr   string      `json:"start_addr"`
	EndAddr     string      `json:"end_addr"`
	Disable     bool        `json:"disable"`
	Member      *dhcpMember `json:"member,omitempty"`
}

// nextAvailableIP is the function value asking the appliance for the first
// free address of a range.
func nextAvailableIP(networkView, first, last string) string {
	return "func:nextavailableip:" + first + "-" + last + "," + networkView
}
