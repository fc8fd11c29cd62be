package allocator

import (
	"context"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/log"
)

// FixedAddressStrategy allocates bare fixed addresses. DNS records are
// managed separately, for the configured record kinds only.
type FixedAddressStrategy struct {
	dir         domain.DirectoryService
	bindKinds   []string
	unbindKinds []string
	deleteKinds []string
}

func NewFixedAddressStrategy(dir domain.DirectoryService, bindKinds, unbindKinds, deleteKinds []string) *FixedAddressStrategy {
	return &FixedAddressStrategy{
		dir:         dir,
		bindKinds:   bindKinds,
		unbindKinds: unbindKinds,
		deleteKinds: deleteKinds,
	}
}

func (s *FixedAddressStrategy) Name() string {
	return "fixed_address"
}

func (s *FixedAddressStrategy) AllocateFromRange(ctx context.Context, req domain.RangeRequest) (string, error) {
	fa, err := s.dir.CreateFixedAddressFromRange(ctx, req.NetworkView, req.MAC, req.FirstIP, req.LastIP, req.ExtAttrs)
	if err != nil {
		return "", err
	}
	return fa.Address, nil
}

func (s *FixedAddressStrategy) AllocateGivenAddress(ctx context.Context, req AddressRequest) (string, error) {
	fa, err := s.dir.CreateFixedAddressForAddress(ctx, req.NetworkView, req.MAC, req.Address, req.ExtAttrs)
	if err != nil {
		return "", err
	}
	return fa.Address, nil
}

func (s *FixedAddressStrategy) Deallocate(ctx context.Context, networkView, dnsView, ip string) error {
	if len(s.deleteKinds) > 0 {
		if err := s.dir.DeleteAssociatedObjects(ctx, networkView, ip, s.deleteKinds); err != nil {
			return err
		}
	}
	return s.dir.DeleteFixedAddress(ctx, networkView, ip)
}

func (s *FixedAddressStrategy) BindName(ctx context.Context, dnsView, ip, fqdn string) error {
	if len(s.bindKinds) == 0 {
		return nil
	}
	refs, err := s.dir.BindNameWithRecords(ctx, dnsView, ip, fqdn, s.bindKinds)
	if err != nil {
		return err
	}
	log.G(ctx).WithField("ip", ip).Debugf("bound %s to %d DNS records", fqdn, len(refs))
	return nil
}

func (s *FixedAddressStrategy) UnbindName(ctx context.Context, dnsView, ip, fqdn string) error {
	if len(s.unbindKinds) == 0 {
		return nil
	}
	return s.dir.UnbindNameFromRecords(ctx, dnsView, ip, fqdn, s.unbindKinds)
}

func (s *FixedAddressStrategy) UpdateAttributes(ctx context.Context, networkView, dnsView, ip string, attrs domain.ExtAttrs) error {
	if err := s.dir.UpdateFixedAddressAttrs(ctx, networkView, ip, attrs); err != nil {
		return err
	}
	return s.dir.UpdateDNSRecordAttrs(ctx, dnsView, ip, attrs)
}
