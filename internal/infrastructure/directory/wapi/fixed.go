package wapi

import (
	"context"
	"strings"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/log"
)

// The appliance requires a MAC on fixed addresses.
const zeroMAC = "00:00:00:00:00:00"

func (c *Client) createFixed(ctx context.Context, networkView, mac, address string, attrs domain.ExtAttrs) (*domain.FixedAddress, error) {
	if mac == "" {
		mac = zeroMAC
	}
	body := fixedAddress{
		IPv4Addr:    address,
		MAC:         mac,
		NetworkView: networkView,
		ExtAttrs:    toExtAttrs(attrs),
	}
	var created fixedAddress
	if err := c.create(ctx, "fixedaddress", body, fixedFields, &created); err != nil {
		return nil, err
	}
	return created.toDomain(), nil
}

func (c *Client) CreateFixedAddressFromRange(ctx context.Context, networkView, mac, firstIP, lastIP string, attrs domain.ExtAttrs) (*domain.FixedAddress, error) {
	fa, err := c.createFixed(ctx, networkView, mac, nextAvailableIP(networkView, firstIP, lastIP), attrs)
	if isExhausted(err) {
		return nil, &domain.NoAddressAvailableError{NetworkView: networkView, FirstIP: firstIP, LastIP: lastIP}
	}
	return fa, err
}

func (c *Client) CreateFixedAddressForAddress(ctx context.Context, networkView, mac, ip string, attrs domain.ExtAttrs) (*domain.FixedAddress, error) {
	return c.createFixed(ctx, networkView, mac, ip, attrs)
}

func (c *Client) DeleteFixedAddress(ctx context.Context, networkView, ip string) error {
	return c.deleteAll(ctx, "fixedaddress", map[string]string{"network_view": networkView, "ipv4addr": ip})
}

func (c *Client) UpdateFixedAddressAttrs(ctx context.Context, networkView, ip string, attrs domain.ExtAttrs) error {
	refs, err := c.refs(ctx, "fixedaddress", map[string]string{"network_view": networkView, "ipv4addr": ip})
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return &domain.DirectoryError{Op: "update", Object: "fixedaddress " + ip, Code: 404, Body: "fixed address not found", Kind: domain.ErrNotFound}
	}
	return c.update(ctx, refs[0], map[string]interface{}{"extattrs": toExtAttrs(attrs)}, "", nil)
}

// recordBody returns the body creating a record of kind for name and ip,
// or nil when the kind cannot be derived from an address.
func recordBody(kind, dnsView, ip, name string) map[string]string {
	switch kind {
	case "record:a":
		return map[string]string{"view": dnsView, "name": name, "ipv4addr": ip}
	case "record:aaaa":
		return map[string]string{"view": dnsView, "name": name, "ipv6addr": ip}
	case "record:ptr":
		return map[string]string{"view": dnsView, "ptrdname": name, "ipv4addr": ip}
	}
	return nil
}

func recordQuery(kind, dnsView, ip, name string) map[string]string {
	q := recordBody(kind, dnsView, ip, name)
	if q == nil && name != "" {
		q = map[string]string{"view": dnsView, "name": name}
	}
	return q
}

func (c *Client) BindNameWithRecords(ctx context.Context, dnsView, ip, name string, kinds []string) ([]string, error) {
	var refs []string
	for _, kind := range kinds {
		body := recordBody(kind, dnsView, ip, name)
		if body == nil {
			log.G(ctx).WithField("kind", kind).Debug("record kind is not bound to addresses, skipped")
			continue
		}
		var ref string
		if err := c.create(ctx, kind, body, "", &ref); err != nil {
			return refs, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (c *Client) UnbindNameFromRecords(ctx context.Context, dnsView, ip, name string, kinds []string) error {
	for _, kind := range kinds {
		q := recordQuery(kind, dnsView, ip, name)
		if q == nil {
			continue
		}
		if err := c.deleteAll(ctx, kind, q); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAssociatedObjects removes the objects of the given kinds the
// appliance associates with ip in networkView.
func (c *Client) DeleteAssociatedObjects(ctx context.Context, networkView, ip string, kinds []string) error {
	var addrs []struct {
		Objects []string `json:"objects"`
	}
	err := c.get(ctx, "ipv4address", map[string]string{"network_view": networkView, "ip_address": ip}, "objects", &addrs)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		for _, ref := range a.Objects {
			if !matchesKind(ref, kinds) {
				continue
			}
			if err := c.delete(ctx, ref); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchesKind(ref string, kinds []string) bool {
	for _, k := range kinds {
		if strings.HasPrefix(ref, k+"/") {
			return true
		}
	}
	return false
}

func (c *Client) UpdateDNSRecordAttrs(ctx context.Context, dnsView, ip string, attrs domain.ExtAttrs) error {
	for _, kind := range []string{"record:a", "record:ptr"} {
		refs, err := c.refs(ctx, kind, map[string]string{"view": dnsView, "ipv4addr": ip})
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if err := c.update(ctx, ref, map[string]interface{}{"extattrs": toExtAttrs(attrs)}, "", nil); err != nil {
				return err
			}
		}
	}
	return nil
}
