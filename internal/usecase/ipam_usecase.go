package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zinrai/ddi-ipam-go/internal/allocator"
	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/log"
	"github.com/zinrai/ddi-ipam-go/internal/metrics"
	"github.com/zinrai/ddi-ipam-go/internal/policy"
)

// IPAMUseCase drives subnet provisioning and address allocation against the
// directory service.
type IPAMUseCase struct {
	repo     domain.NetworkRepository
	resolver *policy.Resolver
	strategy allocator.Strategy
	dir      domain.DirectoryService
	metrics  *metrics.Metrics
}

func NewIPAMUseCase(repo domain.NetworkRepository, resolver *policy.Resolver, strategy allocator.Strategy, dir domain.DirectoryService, m *metrics.Metrics) *IPAMUseCase {
	if m == nil {
		m = metrics.New(nil)
	}
	return &IPAMUseCase{
		repo:     repo,
		resolver: resolver,
		strategy: strategy,
		dir:      dir,
		metrics:  m,
	}
}

func (uc *IPAMUseCase) CreateNetwork(ctx context.Context, network *domain.Network) error {
	if network.ID == "" {
		network.ID = uuid.New().String()
	}
	if err := uc.repo.CreateNetwork(ctx, network); err != nil {
		return errors.Wrapf(err, "failed to create network %s", network.ID)
	}
	log.G(ctx).WithField("network.id", network.ID).Info("created network")
	return nil
}

func (uc *IPAMUseCase) GetNetwork(ctx context.Context, id string) (*domain.Network, error) {
	network, err := uc.repo.GetNetwork(ctx, id)
	if err != nil {
		return nil, err
	}
	if network == nil {
		return nil, errors.Wrapf(domain.ErrNotFound, "network %s", id)
	}
	return network, nil
}

func (uc *IPAMUseCase) ListNetworks(ctx context.Context) ([]*domain.Network, error) {
	return uc.repo.ListNetworks(ctx)
}

// UpdateNetwork renames a network. The rename is refused when the name is
// part of the DNS domain of one of its subnets.
func (uc *IPAMUseCase) UpdateNetwork(ctx context.Context, network *domain.Network) error {
	stored, err := uc.GetNetwork(ctx, network.ID)
	if err != nil {
		return err
	}
	subnets, err := uc.repo.ListSubnets(ctx, network.ID)
	if err != nil {
		return err
	}
	for _, subnet := range subnets {
		p, err := uc.resolver.Resolve(ctx, subnet)
		if err != nil {
			return err
		}
		if err := p.VerifyNetworkRenameAllowed(stored.Name, network.Name); err != nil {
			return err
		}
	}

	stored.Name = network.Name
	return uc.repo.UpdateNetwork(ctx, stored)
}

// DeleteNetwork deletes every subnet of the network, then its network view
// once the view holds no network.
func (uc *IPAMUseCase) DeleteNetwork(ctx context.Context, id string) error {
	network, err := uc.GetNetwork(ctx, id)
	if err != nil {
		return err
	}
	ctx = log.WithFields(ctx, logrus.Fields{"network.id": id})

	subnets, err := uc.repo.ListSubnets(ctx, id)
	if err != nil {
		return err
	}
	for _, subnet := range subnets {
		log.G(ctx).WithField("subnet.id", subnet.ID).Info("removing subnet of deleted network")
		if err := uc.DeleteSubnet(ctx, subnet.ID); err != nil {
			return err
		}
	}

	if view := network.NetworkView; view != "" && view != domain.DefaultView {
		has, err := uc.dir.HasNetworks(ctx, view)
		if err != nil {
			return err
		}
		if !has {
			if err := uc.dir.DeleteNetworkView(ctx, view); err != nil {
				return err
			}
			log.G(ctx).WithField("network_view", view).Info("deleted network view")
		}
	}
	return uc.repo.DeleteNetwork(ctx, id)
}

// NetworkServers returns the DHCP and DNS relay servers recorded for a
// network.
func (uc *IPAMUseCase) NetworkServers(ctx context.Context, networkID string) (dhcp, dns []string, err error) {
	if _, err := uc.GetNetwork(ctx, networkID); err != nil {
		return nil, nil, err
	}
	dhcp, err = uc.repo.NetworkServers(ctx, networkID, domain.DHCPMember)
	if err != nil {
		return nil, nil, err
	}
	dns, err = uc.repo.NetworkServers(ctx, networkID, domain.DNSMember)
	if err != nil {
		return nil, nil, err
	}
	return dhcp, dns, nil
}

func (uc *IPAMUseCase) subnet(ctx context.Context, id string) (*domain.Subnet, error) {
	subnet, err := uc.repo.GetSubnet(ctx, id)
	if err != nil {
		return nil, err
	}
	if subnet == nil {
		return nil, errors.Wrapf(domain.ErrNotFound, "subnet %s", id)
	}
	return subnet, nil
}

// views resolves the policy of subnet with its network and DNS views.
func (uc *IPAMUseCase) views(ctx context.Context, subnet *domain.Subnet) (*policy.Policy, string, string, error) {
	p, err := uc.resolver.Resolve(ctx, subnet)
	if err != nil {
		return nil, "", "", err
	}
	netView, err := p.NetworkView(ctx)
	if err != nil {
		return nil, "", "", err
	}
	dnsView, err := p.DNSView(ctx)
	if err != nil {
		return nil, "", "", err
	}
	return p, netView, dnsView, nil
}

func networkAttrs(network *domain.Network, subnet *domain.Subnet) domain.ExtAttrs {
	attrs := domain.ExtAttrs{
		"Cloud API Owned": "True",
		"Tenant ID":       subnet.TenantID,
		"Network ID":      subnet.NetworkID,
		"Subnet ID":       subnet.ID,
	}
	if network != nil {
		attrs["Network Name"] = network.Name
		if network.External {
			attrs["Is External"] = "True"
		}
	}
	if subnet.Name != "" {
		attrs["Subnet Name"] = subnet.Name
	}
	return attrs
}

func portAttrs(port *domain.Port) domain.ExtAttrs {
	attrs := domain.ExtAttrs{
		"Cloud API Owned": "True",
		"Tenant ID":       port.TenantID,
		"Port ID":         port.ID,
	}
	if port.DeviceID != "" {
		attrs["VM ID"] = port.DeviceID
	}
	if port.DeviceOwner != "" {
		attrs["Port Attached Device - Device Owner"] = port.DeviceOwner
	}
	return attrs
}
