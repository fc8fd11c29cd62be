package wapi

import (
	"context"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

func fqdn(hostname, zone string) string {
	if zone == "" {
		return hostname
	}
	return hostname + "." + zone
}

func (c *Client) findHost(ctx context.Context, query map[string]string) (*domain.HostRecord, error) {
	var records []hostRecord
	if err := c.get(ctx, "record:host", query, hostFields, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0].toDomain(), nil
}

func (c *Client) FindHostRecordByName(ctx context.Context, dnsView, name string) (*domain.HostRecord, error) {
	return c.findHost(ctx, map[string]string{"view": dnsView, "name": name})
}

func (c *Client) FindHostRecordByAddress(ctx context.Context, dnsView, ip string) (*domain.HostRecord, error) {
	return c.findHost(ctx, map[string]string{"view": dnsView, "ipv4addr": ip})
}

func (c *Client) createHost(ctx context.Context, dnsView, name, address, mac string, attrs domain.ExtAttrs) (*domain.HostRecord, error) {
	body := hostRecord{
		Name: name,
		View: dnsView,
		IPv4Addrs: []hostAddr{{
			IPv4Addr:         address,
			MAC:              mac,
			ConfigureForDHCP: c.configureForDHCP,
		}},
		ExtAttrs: toExtAttrs(attrs),
	}
	var created hostRecord
	if err := c.create(ctx, "record:host", body, hostFields, &created); err != nil {
		return nil, err
	}
	return created.toDomain(), nil
}

func (c *Client) CreateHostRecordFromRange(ctx context.Context, req domain.RangeRequest) (*domain.HostRecord, error) {
	record, err := c.createHost(ctx, req.DNSView, fqdn(req.Hostname, req.Zone),
		nextAvailableIP(req.NetworkView, req.FirstIP, req.LastIP), req.MAC, req.ExtAttrs)
	if isExhausted(err) {
		return nil, &domain.NoAddressAvailableError{NetworkView: req.NetworkView, FirstIP: req.FirstIP, LastIP: req.LastIP}
	}
	return record, err
}

func (c *Client) CreateHostRecordForAddress(ctx context.Context, dnsView, zone, hostname, mac, ip string, attrs domain.ExtAttrs) (*domain.HostRecord, error) {
	return c.createHost(ctx, dnsView, fqdn(hostname, zone), ip, mac, attrs)
}

func (c *Client) setHostAddrs(ctx context.Context, record *domain.HostRecord, addrs []hostAddr) (*domain.HostRecord, error) {
	var updated hostRecord
	if err := c.update(ctx, record.Ref, map[string]interface{}{"ipv4addrs": addrs}, hostFields, &updated); err != nil {
		return nil, err
	}
	return updated.toDomain(), nil
}

func (c *Client) AddAddressFromRange(ctx context.Context, record *domain.HostRecord, networkView, mac, firstIP, lastIP string) (*domain.HostRecord, error) {
	addrs := append(addrsOf(record), hostAddr{
		IPv4Addr:         nextAvailableIP(networkView, firstIP, lastIP),
		MAC:              mac,
		ConfigureForDHCP: c.configureForDHCP,
	})
	updated, err := c.setHostAddrs(ctx, record, addrs)
	if isExhausted(err) {
		return nil, &domain.NoAddressAvailableError{NetworkView: networkView, FirstIP: firstIP, LastIP: lastIP}
	}
	return updated, err
}

func (c *Client) AddAddressToHostRecord(ctx context.Context, record *domain.HostRecord, ip, mac string) (*domain.HostRecord, error) {
	addrs := append(addrsOf(record), hostAddr{IPv4Addr: ip, MAC: mac, ConfigureForDHCP: c.configureForDHCP})
	return c.setHostAddrs(ctx, record, addrs)
}

func (c *Client) RemoveAddressFromHostRecord(ctx context.Context, record *domain.HostRecord, ip string) error {
	var kept []hostAddr
	for _, a := range addrsOf(record) {
		if a.IPv4Addr != ip {
			kept = append(kept, a)
		}
	}
	_, err := c.setHostAddrs(ctx, record, kept)
	return err
}

func (c *Client) DeleteHostRecord(ctx context.Context, dnsView, ip string) error {
	record, err := c.FindHostRecordByAddress(ctx, dnsView, ip)
	if err != nil || record == nil {
		return err
	}
	return c.delete(ctx, record.Ref)
}

func (c *Client) BindNameWithHostRecord(ctx context.Context, dnsView, ip, name string) error {
	record, err := c.FindHostRecordByAddress(ctx, dnsView, ip)
	if err != nil {
		return err
	}
	if record == nil {
		return &domain.DirectoryError{Op: "bind", Object: "record:host " + ip, Code: 404, Body: "host record not found", Kind: domain.ErrNotFound}
	}
	return c.update(ctx, record.Ref, map[string]string{"name": name}, "", nil)
}

func (c *Client) UpdateHostRecordAttrs(ctx context.Context, dnsView, ip string, attrs domain.ExtAttrs) error {
	record, err := c.FindHostRecordByAddress(ctx, dnsView, ip)
	if err != nil || record == nil {
		return err
	}
	return c.update(ctx, record.Ref, map[string]interface{}{"extattrs": toExtAttrs(attrs)}, "", nil)
}
