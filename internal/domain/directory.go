package domain

import (
	"context"
)

// RangeRequest selects a free address between FirstIP and LastIP of a
// network view.
type RangeRequest struct {
	NetworkView string
	DNSView     string
	Zone        string
	Hostname    string
	MAC         string
	FirstIP     string
	LastIP      string
	ExtAttrs    ExtAttrs
}

// HostRecordClient manages host records. Find methods return nil, nil when
// nothing matches.
type HostRecordClient interface {
	FindHostRecordByName(ctx context.Context, dnsView, fqdn string) (*HostRecord, error)
	FindHostRecordByAddress(ctx context.Context, dnsView, ip string) (*HostRecord, error)
	CreateHostRecordFromRange(ctx context.Context, req RangeRequest) (*HostRecord, error)
	CreateHostRecordForAddress(ctx context.Context, dnsView, zone, hostname, mac, ip string, attrs ExtAttrs) (*HostRecord, error)
	AddAddressFromRange(ctx context.Context, record *HostRecord, networkView, mac, firstIP, lastIP string) (*HostRecord, error)
	AddAddressToHostRecord(ctx context.Context, record *HostRecord, ip, mac string) (*HostRecord, error)
	RemoveAddressFromHostRecord(ctx context.Context, record *HostRecord, ip string) error
	DeleteHostRecord(ctx context.Context, dnsView, ip string) error
	BindNameWithHostRecord(ctx context.Context, dnsView, ip, fqdn string) error
	UpdateHostRecordAttrs(ctx context.Context, dnsView, ip string, attrs ExtAttrs) error
}

// FixedAddressClient manages fixed addresses and the DNS records bound to
// them.
type FixedAddressClient interface {
	CreateFixedAddressFromRange(ctx context.Context, networkView, mac, firstIP, lastIP string, attrs ExtAttrs) (*FixedAddress, error)
	CreateFixedAddressForAddress(ctx context.Context, networkView, mac, ip string, attrs ExtAttrs) (*FixedAddress, error)
	DeleteFixedAddress(ctx context.Context, networkView, ip string) error
	UpdateFixedAddressAttrs(ctx context.Context, networkView, ip string, attrs ExtAttrs) error
	BindNameWithRecords(ctx context.Context, dnsView, ip, fqdn string, kinds []string) ([]string, error)
	UnbindNameFromRecords(ctx context.Context, dnsView, ip, fqdn string, kinds []string) error
	DeleteAssociatedObjects(ctx context.Context, networkView, ip string, kinds []string) error
	UpdateDNSRecordAttrs(ctx context.Context, dnsView, ip string, attrs ExtAttrs) error
}

// NetworkClient manages network views, networks, DNS views and ranges.
type NetworkClient interface {
	NetworkViewExists(ctx context.Context, name string) (bool, error)
	CreateNetworkView(ctx context.Context, name string) error
	DeleteNetworkView(ctx context.Context, name string) error
	HasNetworks(ctx context.Context, networkView string) (bool, error)

	NetworkExists(ctx context.Context, networkView, cidr string) (bool, error)
	GetNetwork(ctx context.Context, networkView, cidr string) (*BackendNetwork, error)
	CreateNetwork(ctx context.Context, network *BackendNetwork, members []Member) error
	CreateNetworkFromTemplate(ctx context.Context, network *BackendNetwork, template string) error
	UpdateNetworkOptions(ctx context.Context, network *BackendNetwork, attrs ExtAttrs) error
	DeleteNetwork(ctx context.Context, networkView, cidr string) error

	CreateDNSView(ctx context.Context, networkView, dnsView string) error
	HasDNSZones(ctx context.Context, dnsView string) (bool, error)
	DeleteDNSView(ctx context.Context, dnsView string) error

	CreateRange(ctx context.Context, networkView, cidr, firstIP, lastIP string, members []Member, disable bool) error
	DeleteRange(ctx context.Context, networkView, firstIP, lastIP string) error

	RestartServices(ctx context.Context, members []Member) error
}

// DirectoryService is the full appliance surface consumed by the
// orchestrator and the allocation strategies.
type DirectoryService interface {
	HostRecordClient
	FixedAddressClient
	NetworkClient
}
