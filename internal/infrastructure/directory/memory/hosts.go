package memory

import (
	"context"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

func copyHost(h *domain.HostRecord) *domain.HostRecord {
	c := *h
	c.Addresses = append([]domain.HostAddress(nil), h.Addresses...)
	c.ExtAttrs = copyAttrs(h.ExtAttrs)
	return &c
}

func (d *Directory) hostByName(dnsView, fqdn string) *hostEntry {
	for _, h := range d.hosts {
		if h.record.DNSView == dnsView && h.record.Name == fqdn {
			return h
		}
	}
	return nil
}

func (d *Directory) hostByAddress(dnsView, ip string) *hostEntry {
	for _, h := range d.hosts {
		if h.record.DNSView == dnsView && h.record.HasAddress(ip) {
			return h
		}
	}
	return nil
}

func (d *Directory) hostByRef(record *domain.HostRecord) (*hostEntry, error) {
	if record == nil {
		return nil, notFound("update", "record:host")
	}
	h, ok := d.hosts[record.Ref]
	if !ok {
		return nil, notFound("update", "record:host "+record.Ref)
	}
	return h, nil
}

func fqdn(hostname, zone string) string {
	if zone == "" {
		return hostname
	}
	return hostname + "." + zone
}

func (d *Directory) FindHostRecordByName(ctx context.Context, dnsView, name string) (*domain.HostRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("FindHostRecordByName"); err != nil {
		return nil, err
	}
	if h := d.hostByName(dnsView, name); h != nil {
		return copyHost(h.record), nil
	}
	return nil, nil
}

func (d *Directory) FindHostRecordByAddress(ctx context.Context, dnsView, ip string) (*domain.HostRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("FindHostRecordByAddress"); err != nil {
		return nil, err
	}
	if h := d.hostByAddress(dnsView, ip); h != nil {
		return copyHost(h.record), nil
	}
	return nil, nil
}

func (d *Directory) newHost(dnsView, networkView, name string, attrs domain.ExtAttrs) (*hostEntry, error) {
	if d.hostByName(dnsView, name) != nil {
		return nil, &domain.DirectoryError{
			Op:     "create",
			Object: "record:host " + name,
			Code:   400,
			Body:   "the record already exists",
			Kind:   domain.ErrConflict,
		}
	}
	return &hostEntry{
		record: &domain.HostRecord{
			Ref:      d.nextRef("record:host", name, dnsView),
			Name:     name,
			DNSView:  dnsView,
			ExtAttrs: copyAttrs(attrs),
		},
		networkView: networkView,
	}, nil
}

func (d *Directory) CreateHostRecordFromRange(ctx context.Context, req domain.RangeRequest) (*domain.HostRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateHostRecordFromRange"); err != nil {
		return nil, err
	}

	name := fqdn(req.Hostname, req.Zone)
	h, err := d.newHost(req.DNSView, req.NetworkView, name, req.ExtAttrs)
	if err != nil {
		return nil, err
	}
	ip, err := d.nextFree(req.NetworkView, req.FirstIP, req.LastIP, h.record.Ref)
	if err != nil {
		return nil, err
	}
	h.record.Addresses = []domain.HostAddress{{
		Ref:              h.record.Ref + "/" + ip,
		Address:          ip,
		MAC:              req.MAC,
		Host:             name,
		ConfigureForDHCP: d.configureForDHCP,
	}}
	d.hosts[h.record.Ref] = h
	return copyHost(h.record), nil
}

func (d *Directory) CreateHostRecordForAddress(ctx context.Context, dnsView, zone, hostname, mac, ip string, attrs domain.ExtAttrs) (*domain.HostRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateHostRecordForAddress"); err != nil {
		return nil, err
	}

	name := fqdn(hostname, zone)
	h, err := d.newHost(dnsView, d.networkViewOf(dnsView), name, attrs)
	if err != nil {
		return nil, err
	}
	if err := d.claim(h.networkView, ip, h.record.Ref); err != nil {
		return nil, err
	}
	h.record.Addresses = []domain.HostAddress{{
		Ref:              h.record.Ref + "/" + ip,
		Address:          ip,
		MAC:              mac,
		Host:             name,
		ConfigureForDHCP: d.configureForDHCP,
	}}
	d.hosts[h.record.Ref] = h
	return copyHost(h.record), nil
}

func (d *Directory) AddAddressFromRange(ctx context.Context, record *domain.HostRecord, networkView, mac, firstIP, lastIP string) (*domain.HostRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("AddAddressFromRange"); err != nil {
		return nil, err
	}

	h, err := d.hostByRef(record)
	if err != nil {
		return nil, err
	}
	ip, err := d.nextFree(networkView, firstIP, lastIP, h.record.Ref)
	if err != nil {
		return nil, err
	}
	h.record.Addresses = append(h.record.Addresses, domain.HostAddress{
		Ref:              h.record.Ref + "/" + ip,
		Address:          ip,
		MAC:              mac,
		Host:             h.record.Name,
		ConfigureForDHCP: d.configureForDHCP,
	})
	return copyHost(h.record), nil
}

func (d *Directory) AddAddressToHostRecord(ctx context.Context, record *domain.HostRecord, ip, mac string) (*domain.HostRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("AddAddressToHostRecord"); err != nil {
		return nil, err
	}

	h, err := d.hostByRef(record)
	if err != nil {
		return nil, err
	}
	if h.record.HasAddress(ip) {
		return copyHost(h.record), nil
	}
	if err := d.claim(h.networkView, ip, h.record.Ref); err != nil {
		return nil, err
	}
	h.record.Addresses = append(h.record.Addresses, domain.HostAddress{
		Ref:              h.record.Ref + "/" + ip,
		Address:          ip,
		MAC:              mac,
		Host:             h.record.Name,
		ConfigureForDHCP: d.configureForDHCP,
	})
	return copyHost(h.record), nil
}

func (d *Directory) RemoveAddressFromHostRecord(ctx context.Context, record *domain.HostRecord, ip string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("RemoveAddressFromHostRecord"); err != nil {
		return err
	}

	h, err := d.hostByRef(record)
	if err != nil {
		return err
	}
	kept := h.record.Addresses[:0]
	for _, a := range h.record.Addresses {
		if a.Address != ip {
			kept = append(kept, a)
		}
	}
	h.record.Addresses = kept
	d.release(h.networkView, ip)
	return nil
}

// DeleteHostRecord removes the record holding ip. A missing record is not
// an error.
func (d *Directory) DeleteHostRecord(ctx context.Context, dnsView, ip string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("DeleteHostRecord"); err != nil {
		return err
	}

	h := d.hostByAddress(dnsView, ip)
	if h == nil {
		return nil
	}
	for _, a := range h.record.Addresses {
		d.release(h.networkView, a.Address)
	}
	delete(d.hosts, h.record.Ref)
	return nil
}

func (d *Directory) BindNameWithHostRecord(ctx context.Context, dnsView, ip, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("BindNameWithHostRecord"); err != nil {
		return err
	}

	h := d.hostByAddress(dnsView, ip)
	if h == nil {
		return notFound("bind", "record:host "+ip)
	}
	h.record.Name = name
	for i := range h.record.Addresses {
		h.record.Addresses[i].Host = name
	}
	return nil
}

func (d *Directory) UpdateHostRecordAttrs(ctx context.Context, dnsView, ip string, attrs domain.ExtAttrs) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("UpdateHostRecordAttrs"); err != nil {
		return err
	}

	if h := d.hostByAddress(dnsView, ip); h != nil {
		h.record.ExtAttrs = copyAttrs(attrs)
	}
	return nil
}
