package allocator

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/log"
)

// HostRecordStrategy keeps the address and the DNS name of an allocation in
// one host record.
type HostRecordStrategy struct {
	dir domain.DirectoryService
}

func NewHostRecordStrategy(dir domain.DirectoryService) *HostRecordStrategy {
	return &HostRecordStrategy{dir: dir}
}

func (s *HostRecordStrategy) Name() string {
	return "host_record"
}

// AllocateFromRange extends the record already holding the host name, or
// creates a new one.
func (s *HostRecordStrategy) AllocateFromRange(ctx context.Context, req domain.RangeRequest) (string, error) {
	fqdn := req.Hostname + "." + req.Zone
	existing, err := s.dir.FindHostRecordByName(ctx, req.DNSView, fqdn)
	if err != nil {
		return "", err
	}

	var record *domain.HostRecord
	if existing != nil {
		record, err = s.dir.AddAddressFromRange(ctx, existing, req.NetworkView, req.MAC, req.FirstIP, req.LastIP)
	} else {
		record, err = s.dir.CreateHostRecordFromRange(ctx, req)
	}
	if err != nil {
		return "", err
	}
	return lastAddress(record)
}

func (s *HostRecordStrategy) AllocateGivenAddress(ctx context.Context, req AddressRequest) (string, error) {
	record, err := s.dir.CreateHostRecordForAddress(ctx, req.DNSView, req.Zone, req.Hostname, req.MAC, req.Address, req.ExtAttrs)
	if err != nil {
		return "", err
	}
	return lastAddress(record)
}

// Deallocate drops ip from its record, or deletes the record when ip is its
// only address.
func (s *HostRecordStrategy) Deallocate(ctx context.Context, networkView, dnsView, ip string) error {
	record, err := s.dir.FindHostRecordByAddress(ctx, dnsView, ip)
	if err != nil {
		return err
	}
	if record != nil && len(record.Addresses) > 1 {
		return s.dir.RemoveAddressFromHostRecord(ctx, record, ip)
	}
	return s.dir.DeleteHostRecord(ctx, dnsView, ip)
}

// BindName names the record of ip. When another record already carries the
// name, ip moves into that record and its original record is dropped.
func (s *HostRecordStrategy) BindName(ctx context.Context, dnsView, ip, fqdn string) error {
	named, err := s.dir.FindHostRecordByName(ctx, dnsView, fqdn)
	if err != nil {
		return err
	}
	holding, err := s.dir.FindHostRecordByAddress(ctx, dnsView, ip)
	if err != nil {
		return err
	}
	if domain.SameRecord(named, holding) {
		return nil
	}
	if named == nil {
		return s.dir.BindNameWithHostRecord(ctx, dnsView, ip, fqdn)
	}

	var mac string
	if holding != nil {
		mac = holding.Address(ip).MAC
		if len(holding.Addresses) > 1 {
			err = s.dir.RemoveAddressFromHostRecord(ctx, holding, ip)
		} else {
			err = s.dir.DeleteHostRecord(ctx, dnsView, ip)
		}
		if err != nil {
			return errors.Wrapf(err, "failed to detach %s from its host record", ip)
		}
	}
	if _, err := s.dir.AddAddressToHostRecord(ctx, named, ip, mac); err != nil {
		return err
	}
	log.G(ctx).WithFields(logrus.Fields{
		"ip":       ip,
		"dns_view": dnsView,
		"host":     fqdn,
	}).Info("merged address into existing host record")
	return nil
}

// UnbindName is a no-op: the name goes away with the host record.
func (s *HostRecordStrategy) UnbindName(ctx context.Context, dnsView, ip, fqdn string) error {
	return nil
}

func (s *HostRecordStrategy) UpdateAttributes(ctx context.Context, networkView, dnsView, ip string, attrs domain.ExtAttrs) error {
	if err := s.dir.UpdateHostRecordAttrs(ctx, dnsView, ip, attrs); err != nil {
		return err
	}
	return s.dir.UpdateDNSRecordAttrs(ctx, dnsView, ip, attrs)
}

func lastAddress(record *domain.HostRecord) (string, error) {
	if record == nil || len(record.Addresses) == 0 {
		return "", &domain.HostRecordNotPresentError{}
	}
	return record.LastAddress(), nil
}
