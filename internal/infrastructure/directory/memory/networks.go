package memory

import (
	"context"

	"inet.af/netaddr"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

func copyNetwork(n *domain.BackendNetwork) *domain.BackendNetwork {
	c := *n
	c.MemberIPs = append([]string(nil), n.MemberIPs...)
	c.Options = append([]domain.DHCPOption(nil), n.Options...)
	c.ExtAttrs = copyAttrs(n.ExtAttrs)
	return &c
}

func (d *Directory) NetworkViewExists(ctx context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("NetworkViewExists"); err != nil {
		return false, err
	}
	return d.networkViews[name], nil
}

func (d *Directory) CreateNetworkView(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateNetworkView"); err != nil {
		return err
	}
	d.networkViews[name] = true
	return nil
}

func (d *Directory) DeleteNetworkView(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("DeleteNetworkView"); err != nil {
		return err
	}
	if name == domain.DefaultView {
		return &domain.DirectoryError{Op: "delete", Object: "networkview " + name, Code: 400, Body: "the default network view cannot be deleted", Kind: domain.ErrValidation}
	}
	delete(d.networkViews, name)
	delete(d.used, name)
	return nil
}

func (d *Directory) HasNetworks(ctx context.Context, networkView string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("HasNetworks"); err != nil {
		return false, err
	}
	for _, n := range d.networks {
		if n.NetworkView == networkView {
			return true, nil
		}
	}
	return false, nil
}

func (d *Directory) NetworkExists(ctx context.Context, networkView, cidr string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("NetworkExists"); err != nil {
		return false, err
	}
	_, ok := d.networks[networkKey(networkView, cidr)]
	return ok, nil
}

func (d *Directory) GetNetwork(ctx context.Context, networkView, cidr string) (*domain.BackendNetwork, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("GetNetwork"); err != nil {
		return nil, err
	}
	n, ok := d.networks[networkKey(networkView, cidr)]
	if !ok {
		return nil, notFound("get", "network "+cidr+" in "+networkView)
	}
	return copyNetwork(n), nil
}

func (d *Directory) addNetwork(network *domain.BackendNetwork) error {
	if _, err := netaddr.ParseIPPrefix(network.CIDR); err != nil {
		return &domain.DirectoryError{Op: "create", Object: "network " + network.CIDR, Code: 400, Body: err.Error(), Kind: domain.ErrValidation}
	}
	if !d.networkViews[network.NetworkView] {
		return notFound("create", "networkview "+network.NetworkView)
	}
	key := networkKey(network.NetworkView, network.CIDR)
	if _, ok := d.networks[key]; ok {
		return &domain.DirectoryError{Op: "create", Object: "network " + network.CIDR, Code: 400, Body: "the network already exists", Kind: domain.ErrConflict}
	}
	c := copyNetwork(network)
	c.Ref = d.nextRef("network", network.CIDR, network.NetworkView)
	d.networks[key] = c
	network.Ref = c.Ref
	return nil
}

func (d *Directory) CreateNetwork(ctx context.Context, network *domain.BackendNetwork, members []domain.Member) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateNetwork"); err != nil {
		return err
	}
	network.MemberIPs = nil
	for _, m := range members {
		network.MemberIPs = append(network.MemberIPs, m.IPv4Addr)
	}
	return d.addNetwork(network)
}

func (d *Directory) CreateNetworkFromTemplate(ctx context.Context, network *domain.BackendNetwork, template string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateNetworkFromTemplate"); err != nil {
		return err
	}
	if err := d.addNetwork(network); err != nil {
		return err
	}
	d.templates[networkKey(network.NetworkView, network.CIDR)] = template
	return nil
}

func (d *Directory) UpdateNetworkOptions(ctx context.Context, network *domain.BackendNetwork, attrs domain.ExtAttrs) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("UpdateNetworkOptions"); err != nil {
		return err
	}
	n, ok := d.networks[networkKey(network.NetworkView, network.CIDR)]
	if !ok {
		return notFound("update", "network "+network.CIDR)
	}
	n.Options = append([]domain.DHCPOption(nil), network.Options...)
	if attrs != nil {
		n.ExtAttrs = copyAttrs(attrs)
	}
	return nil
}

// DeleteNetwork removes a network with its ranges. A missing network is
// not an error.
func (d *Directory) DeleteNetwork(ctx context.Context, networkView, cidr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("DeleteNetwork"); err != nil {
		return err
	}
	key := networkKey(networkView, cidr)
	if _, ok := d.networks[key]; !ok {
		return nil
	}
	delete(d.networks, key)
	delete(d.templates, key)

	kept := d.ranges[:0]
	for _, r := range d.ranges {
		if r.networkView != networkView || r.cidr != cidr {
			kept = append(kept, r)
		}
	}
	d.ranges = kept
	return nil
}

func (d *Directory) CreateDNSView(ctx context.Context, networkView, dnsView string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateDNSView"); err != nil {
		return err
	}
	if _, ok := d.dnsViews[dnsView]; !ok {
		d.dnsViews[dnsView] = networkView
	}
	return nil
}

// HasDNSZones reports whether any record lives in dnsView.
func (d *Directory) HasDNSZones(ctx context.Context, dnsView string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("HasDNSZones"); err != nil {
		return false, err
	}
	for _, h := range d.hosts {
		if h.record.DNSView == dnsView {
			return true, nil
		}
	}
	for _, r := range d.records {
		if r.dnsView == dnsView {
			return true, nil
		}
	}
	return false, nil
}

func (d *Directory) DeleteDNSView(ctx context.Context, dnsView string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("DeleteDNSView"); err != nil {
		return err
	}
	delete(d.dnsViews, dnsView)
	return nil
}

func (d *Directory) CreateRange(ctx context.Context, networkView, cidr, firstIP, lastIP string, members []domain.Member, disable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateRange"); err != nil {
		return err
	}

	prefix, err := netaddr.ParseIPPrefix(cidr)
	if err != nil {
		return &domain.DirectoryError{Op: "create", Object: "range", Code: 400, Body: err.Error(), Kind: domain.ErrValidation}
	}
	first, err := parseIP(firstIP)
	if err != nil {
		return err
	}
	last, err := parseIP(lastIP)
	if err != nil {
		return err
	}
	r := netaddr.IPRangeFrom(first, last)
	if !r.IsValid() || !prefix.Contains(first) || !prefix.Contains(last) {
		return &domain.DirectoryError{Op: "create", Object: "range " + firstIP + "-" + lastIP, Code: 400, Body: "range is not inside network " + cidr, Kind: domain.ErrValidation}
	}
	if _, ok := d.networks[networkKey(networkView, cidr)]; !ok {
		return notFound("create", "network "+cidr+" in "+networkView)
	}
	for _, existing := range d.ranges {
		if existing.networkView == networkView && existing.r.Overlaps(r) {
			return &domain.DirectoryError{Op: "create", Object: "range " + firstIP + "-" + lastIP, Code: 400, Body: "range overlaps an existing range", Kind: domain.ErrConflict}
		}
	}

	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	d.ranges = append(d.ranges, rangeEntry{
		networkView: networkView,
		cidr:        cidr,
		r:           r,
		members:     names,
		disabled:    disable,
	})
	return nil
}

// DeleteRange removes the range first-last. A missing range is not an
// error.
func (d *Directory) DeleteRange(ctx context.Context, networkView, firstIP, lastIP string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("DeleteRange"); err != nil {
		return err
	}
	kept := d.ranges[:0]
	for _, r := range d.ranges {
		if r.networkView == networkView && r.r.From().String() == firstIP && r.r.To().String() == lastIP {
			continue
		}
		kept = append(kept, r)
	}
	d.ranges = kept
	return nil
}
