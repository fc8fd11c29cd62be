package memory

import (
	"context"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

func fixedKey(networkView, ip string) string {
	return networkView + "|" + ip
}

func copyFixed(f *domain.FixedAddress) *domain.FixedAddress {
	c := *f
	c.ExtAttrs = copyAttrs(f.ExtAttrs)
	return &c
}

func (d *Directory) CreateFixedAddressFromRange(ctx context.Context, networkView, mac, firstIP, lastIP string, attrs domain.ExtAttrs) (*domain.FixedAddress, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateFixedAddressFromRange"); err != nil {
		return nil, err
	}

	ref := d.nextRef("fixedaddress", mac, networkView)
	ip, err := d.nextFree(networkView, firstIP, lastIP, ref)
	if err != nil {
		return nil, err
	}
	fa := &domain.FixedAddress{
		Ref:         ref,
		Address:     ip,
		MAC:         mac,
		NetworkView: networkView,
		ExtAttrs:    copyAttrs(attrs),
	}
	d.fixed[fixedKey(networkView, ip)] = fa
	return copyFixed(fa), nil
}

func (d *Directory) CreateFixedAddressForAddress(ctx context.Context, networkView, mac, ip string, attrs domain.ExtAttrs) (*domain.FixedAddress, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CreateFixedAddressForAddress"); err != nil {
		return nil, err
	}

	ref := d.nextRef("fixedaddress", mac, networkView)
	if err := d.claim(networkView, ip, ref); err != nil {
		return nil, err
	}
	fa := &domain.FixedAddress{
		Ref:         ref,
		Address:     ip,
		MAC:         mac,
		NetworkView: networkView,
		ExtAttrs:    copyAttrs(attrs),
	}
	d.fixed[fixedKey(networkView, ip)] = fa
	return copyFixed(fa), nil
}

// FixedAddress returns the fixed address of ip, or nil.
func (d *Directory) FixedAddress(networkView, ip string) *domain.FixedAddress {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fa, ok := d.fixed[fixedKey(networkView, ip)]; ok {
		return copyFixed(fa)
	}
	return nil
}

// DeleteFixedAddress removes the fixed address of ip. A missing object is
// not an error.
func (d *Directory) DeleteFixedAddress(ctx context.Context, networkView, ip string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("DeleteFixedAddress"); err != nil {
		return err
	}

	key := fixedKey(networkView, ip)
	if _, ok := d.fixed[key]; !ok {
		return nil
	}
	delete(d.fixed, key)
	d.release(networkView, ip)
	return nil
}

func (d *Directory) UpdateFixedAddressAttrs(ctx context.Context, networkView, ip string, attrs domain.ExtAttrs) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("UpdateFixedAddressAttrs"); err != nil {
		return err
	}

	fa, ok := d.fixed[fixedKey(networkView, ip)]
	if !ok {
		return notFound("update", "fixedaddress "+ip)
	}
	fa.ExtAttrs = copyAttrs(attrs)
	return nil
}

// BindNameWithRecords creates one DNS record of each kind for name and ip.
func (d *Directory) BindNameWithRecords(ctx context.Context, dnsView, ip, name string, kinds []string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("BindNameWithRecords"); err != nil {
		return nil, err
	}
	if _, err := parseIP(ip); err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		ref := d.nextRef(kind, name, dnsView)
		d.records[ref] = &dnsRecord{
			ref:     ref,
			kind:    kind,
			dnsView: dnsView,
			name:    name,
			address: ip,
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (d *Directory) UnbindNameFromRecords(ctx context.Context, dnsView, ip, name string, kinds []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("UnbindNameFromRecords"); err != nil {
		return err
	}

	for _, ref := range sortedKeys(d.records) {
		r := d.records[ref]
		if r.dnsView == dnsView && r.address == ip && r.name == name && containsKind(kinds, r.kind) {
			delete(d.records, ref)
		}
	}
	return nil
}

// DeleteAssociatedObjects removes the DNS records of the given kinds that
// point at ip in any DNS view of networkView.
func (d *Directory) DeleteAssociatedObjects(ctx context.Context, networkView, ip string, kinds []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("DeleteAssociatedObjects"); err != nil {
		return err
	}

	for _, ref := range sortedKeys(d.records) {
		r := d.records[ref]
		if r.address == ip && d.networkViewOf(r.dnsView) == networkView && containsKind(kinds, r.kind) {
			delete(d.records, ref)
		}
	}
	return nil
}

func (d *Directory) UpdateDNSRecordAttrs(ctx context.Context, dnsView, ip string, attrs domain.ExtAttrs) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("UpdateDNSRecordAttrs"); err != nil {
		return err
	}

	for _, r := range d.records {
		if r.dnsView == dnsView && r.address == ip {
			r.attrs = copyAttrs(attrs)
		}
	}
	return nil
}

// DNSRecords returns the kinds of the DNS records bound to name and ip.
func (d *Directory) DNSRecords(dnsView, ip, name string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var kinds []string
	for _, ref := range sortedKeys(d.records) {
		r := d.records[ref]
		if r.dnsView == dnsView && r.address == ip && r.name == name {
			kinds = append(kinds, r.kind)
		}
	}
	return kinds
}

func containsKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
