package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"inet.af/netaddr"

	"github.com/zinrai/ddi-ipam-go/internal/allocator"
	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/log"
	"github.com/zinrai/ddi-ipam-go/internal/metrics"
	"github.com/zinrai/ddi-ipam-go/internal/policy"
)

// AllocateRequest asks for an address of a subnet. Without Address the
// first free address of the allocation pools is taken.
type AllocateRequest struct {
	SubnetID string
	Port     *domain.Port
	Hostname string
	Address  string
	ExtAttrs domain.ExtAttrs
}

// AllocateIP allocates an address of the subnet and records it. Ranges
// are tried in pool order; an exhausted range moves on to the next one
// and any other failure stops the allocation.
func (uc *IPAMUseCase) AllocateIP(ctx context.Context, req AllocateRequest) (alloc *domain.IPAllocation, err error) {
	defer func() {
		uc.metrics.Allocations.WithLabelValues(uc.strategy.Name(), metrics.Result(err)).Inc()
	}()

	subnet, err := uc.subnet(ctx, req.SubnetID)
	if err != nil {
		return nil, err
	}
	p, netView, dnsView, err := uc.views(ctx, subnet)
	if err != nil {
		return nil, err
	}
	port := req.Port
	if port == nil {
		port = &domain.Port{}
	}

	zone, err := policy.NewPatternBuilder(uc.repo, p.DomainSuffixPattern).
		Build(ctx, subnet, policy.BuildOptions{Port: port})
	if err != nil {
		return nil, err
	}
	hostname := req.Hostname
	if hostname == "" {
		hostname = port.ID
	}
	if hostname == "" {
		hostname = uuid.New().String()
	}

	attrs := portAttrs(port)
	for k, v := range req.ExtAttrs {
		attrs[k] = v
	}

	ctx = log.WithFields(ctx, logrus.Fields{
		"subnet.id":    subnet.ID,
		"network_view": netView,
		"hostname":     hostname,
	})

	var address string
	if req.Address != "" {
		ip, err := netaddr.ParseIP(req.Address)
		if err != nil {
			return nil, &domain.AddressParseError{Value: req.Address}
		}
		address, err = uc.strategy.AllocateGivenAddress(ctx, allocator.AddressRequest{
			NetworkView: netView,
			DNSView:     dnsView,
			Zone:        zone,
			Hostname:    hostname,
			MAC:         port.MACAddress,
			Address:     ip.String(),
			ExtAttrs:    attrs,
		})
		if err != nil {
			return nil, err
		}
	} else {
		address, err = uc.allocateFromPools(ctx, subnet, domain.RangeRequest{
			NetworkView: netView,
			DNSView:     dnsView,
			Zone:        zone,
			Hostname:    hostname,
			MAC:         port.MACAddress,
			ExtAttrs:    attrs,
		})
		if err != nil {
			return nil, err
		}
	}

	alloc = &domain.IPAllocation{
		SubnetID:   subnet.ID,
		Address:    address,
		Hostname:   hostname,
		MACAddress: port.MACAddress,
		PortID:     port.ID,
	}
	if err := uc.repo.RecordAllocation(ctx, alloc); err != nil {
		if derr := uc.strategy.Deallocate(ctx, netView, dnsView, address); derr != nil {
			log.G(ctx).WithError(derr).WithField("address", address).Warn("failed to roll back unrecorded allocation")
		}
		return nil, errors.Wrapf(err, "failed to record allocation of %s", address)
	}
	log.G(ctx).WithField("address", address).Info("allocated address")
	return alloc, nil
}

func (uc *IPAMUseCase) allocateFromPools(ctx context.Context, subnet *domain.Subnet, req domain.RangeRequest) (string, error) {
	for _, pool := range subnet.AllocationPools {
		req.FirstIP, req.LastIP = pool.FirstIP, pool.LastIP
		res := allocator.TryRange(ctx, uc.strategy, req)
		switch res.Outcome {
		case allocator.Allocated:
			return res.Address, nil
		case allocator.Exhausted:
			log.G(ctx).WithField("range", pool.String()).Debug("range exhausted, trying next one")
			uc.metrics.RangeFallbacks.Inc()
		default:
			return "", res.Err
		}
	}
	uc.metrics.Exhaustions.Inc()
	return "", &domain.AllocationExhaustedError{NetworkView: req.NetworkView, CIDR: subnet.CIDR}
}

// DeallocateIP releases an address and restarts the services of the DHCP
// members serving its subnet.
func (uc *IPAMUseCase) DeallocateIP(ctx context.Context, subnetID, address string) (err error) {
	defer func() {
		uc.metrics.Deallocations.WithLabelValues(metrics.Result(err)).Inc()
	}()

	subnet, err := uc.subnet(ctx, subnetID)
	if err != nil {
		return err
	}
	p, netView, dnsView, err := uc.views(ctx, subnet)
	if err != nil {
		return err
	}
	ip, err := netaddr.ParseIP(address)
	if err != nil {
		return &domain.AddressParseError{Value: address}
	}
	address = ip.String()

	if err := uc.strategy.Deallocate(ctx, netView, dnsView, address); err != nil {
		return err
	}
	if err := uc.repo.DeleteAllocation(ctx, subnet.ID, address); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	members, err := p.DHCPMembers(ctx)
	if err != nil {
		return err
	}
	if err := uc.dir.RestartServices(ctx, members); err != nil {
		return err
	}
	log.G(ctx).WithFields(logrus.Fields{"subnet.id": subnet.ID, "address": address}).Info("deallocated address")
	return nil
}

// BindNames binds the host name built for the port to each of its
// addresses.
func (uc *IPAMUseCase) BindNames(ctx context.Context, subnetID string, port *domain.Port, addresses []string) error {
	return uc.eachName(ctx, subnetID, port, addresses, uc.strategy.BindName)
}

func (uc *IPAMUseCase) UnbindNames(ctx context.Context, subnetID string, port *domain.Port, addresses []string) error {
	return uc.eachName(ctx, subnetID, port, addresses, uc.strategy.UnbindName)
}

func (uc *IPAMUseCase) eachName(ctx context.Context, subnetID string, port *domain.Port, addresses []string, fn func(ctx context.Context, dnsView, ip, fqdn string) error) error {
	subnet, err := uc.subnet(ctx, subnetID)
	if err != nil {
		return err
	}
	p, _, dnsView, err := uc.views(ctx, subnet)
	if err != nil {
		return err
	}
	builder := policy.NewPatternBuilder(uc.repo, p.HostnamePattern, p.DomainSuffixPattern)
	for _, address := range addresses {
		fqdn, err := builder.Build(ctx, subnet, policy.BuildOptions{Port: port, IPAddress: address})
		if err != nil {
			return err
		}
		if err := fn(ctx, dnsView, address, fqdn); err != nil {
			return err
		}
	}
	return nil
}

// UpdateAttributes replaces the extensible attributes of the objects
// holding the port's addresses.
func (uc *IPAMUseCase) UpdateAttributes(ctx context.Context, subnetID string, port *domain.Port, addresses []string) error {
	subnet, err := uc.subnet(ctx, subnetID)
	if err != nil {
		return err
	}
	_, netView, dnsView, err := uc.views(ctx, subnet)
	if err != nil {
		return err
	}
	attrs := portAttrs(port)
	for _, address := range addresses {
		if err := uc.strategy.UpdateAttributes(ctx, netView, dnsView, address, attrs); err != nil {
			return err
		}
	}
	return nil
}

func (uc *IPAMUseCase) ListIPs(ctx context.Context, subnetID string) ([]*domain.IPAllocation, error) {
	if _, err := uc.subnet(ctx, subnetID); err != nil {
		return nil, err
	}
	return uc.repo.ListAllocations(ctx, subnetID)
}
