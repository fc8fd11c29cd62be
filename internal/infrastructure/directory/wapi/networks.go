package wapi

import (
	"context"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

func (c *Client) NetworkViewExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, "networkview", map[string]string{"name": name})
}

func (c *Client) CreateNetworkView(ctx context.Context, name string) error {
	return c.create(ctx, "networkview", map[string]string{"name": name}, "", nil)
}

func (c *Client) DeleteNetworkView(ctx context.Context, name string) error {
	if name == domain.DefaultView {
		return &domain.DirectoryError{Op: "delete", Object: "networkview " + name, Code: 400, Body: "the default network view cannot be deleted", Kind: domain.ErrValidation}
	}
	return c.deleteAll(ctx, "networkview", map[string]string{"name": name})
}

func (c *Client) HasNetworks(ctx context.Context, networkView string) (bool, error) {
	return c.exists(ctx, "network", map[string]string{"network_view": networkView})
}

func (c *Client) NetworkExists(ctx context.Context, networkView, cidr string) (bool, error) {
	return c.exists(ctx, "network", map[string]string{"network_view": networkView, "network": cidr})
}

func (c *Client) GetNetwork(ctx context.Context, networkView, cidr string) (*domain.BackendNetwork, error) {
	var networks []network
	err := c.get(ctx, "network", map[string]string{"network_view": networkView, "network": cidr}, networkFields, &networks)
	if err != nil {
		return nil, err
	}
	if len(networks) == 0 {
		return nil, &domain.DirectoryError{Op: "get", Object: "network " + cidr, Code: 404, Body: "network not found in " + networkView, Kind: domain.ErrNotFound}
	}
	return networks[0].toDomain(), nil
}

func (c *Client) CreateNetwork(ctx context.Context, backend *domain.BackendNetwork, members []domain.Member) error {
	body := network{
		Network:     backend.CIDR,
		NetworkView: backend.NetworkView,
		Members:     toDHCPMembers(members),
		Options:     backend.Options,
		ExtAttrs:    toExtAttrs(backend.ExtAttrs),
	}
	var ref string
	if err := c.create(ctx, "network", body, "", &ref); err != nil {
		return err
	}
	backend.Ref = ref
	backend.MemberIPs = nil
	for _, m := range members {
		backend.MemberIPs = append(backend.MemberIPs, m.IPv4Addr)
	}
	return nil
}

func (c *Client) CreateNetworkFromTemplate(ctx context.Context, backend *domain.BackendNetwork, template string) error {
	body := network{
		Network:     backend.CIDR,
		NetworkView: backend.NetworkView,
		Template:    template,
		ExtAttrs:    toExtAttrs(backend.ExtAttrs),
	}
	var ref string
	if err := c.create(ctx, "network", body, "", &ref); err != nil {
		return err
	}
	backend.Ref = ref
	return nil
}

func (c *Client) UpdateNetworkOptions(ctx context.Context, backend *domain.BackendNetwork, attrs domain.ExtAttrs) error {
	ref := backend.Ref
	if ref == "" {
		current, err := c.GetNetwork(ctx, backend.NetworkView, backend.CIDR)
		if err != nil {
			return err
		}
		ref = current.Ref
	}
	body := map[string]interface{}{"options": backend.Options}
	if attrs != nil {
		body["extattrs"] = toExtAttrs(attrs)
	}
	return c.update(ctx, ref, body, "", nil)
}

func (c *Client) DeleteNetwork(ctx context.Context, networkView, cidr string) error {
	return c.deleteAll(ctx, "network", map[string]string{"network_view": networkView, "network": cidr})
}

func (c *Client) CreateDNSView(ctx context.Context, networkView, dnsView string) error {
	exists, err := c.exists(ctx, "view", map[string]string{"name": dnsView})
	if err != nil || exists {
		return err
	}
	return c.create(ctx, "view", map[string]string{"name": dnsView, "network_view": networkView}, "", nil)
}

func (c *Client) HasDNSZones(ctx context.Context, dnsView string) (bool, error) {
	return c.exists(ctx, "zone_auth", map[string]string{"view": dnsView})
}

func (c *Client) DeleteDNSView(ctx context.Context, dnsView string) error {
	return c.deleteAll(ctx, "view", map[string]string{"name": dnsView})
}

func (c *Client) CreateRange(ctx context.Context, networkView, cidr, firstIP, lastIP string, members []domain.Member, disable bool) error {
	body := ipRange{
		NetworkView: networkView,
		Network:     cidr,
		StartAddr:   firstIP,
		EndAddr:     lastIP,
		Disable:     disable,
	}
	if len(members) > 0 {
		m := toDHCPMembers(members[:1])[0]
		body.Member = &m
	}
	return c.create(ctx, "range", body, "", nil)
}

func (c *Client) DeleteRange(ctx context.Context, networkView, firstIP, lastIP string) error {
	return c.deleteAll(ctx, "range", map[string]string{
		"network_view": networkView,
		"start_addr":   firstIP,
		"end_addr":     lastIP,
	})
}
