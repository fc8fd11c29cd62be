package usecase

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"inet.af/netaddr"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/flow"
	"github.com/zinrai/ddi-ipam-go/internal/log"
	"github.com/zinrai/ddi-ipam-go/internal/metrics"
	"github.com/zinrai/ddi-ipam-go/internal/policy"
)

func (uc *IPAMUseCase) GetSubnet(ctx context.Context, id string) (*domain.Subnet, error) {
	return uc.subnet(ctx, id)
}

func (uc *IPAMUseCase) ListSubnets(ctx context.Context, networkID string) ([]*domain.Subnet, error) {
	return uc.repo.ListSubnets(ctx, networkID)
}

// normalizeSubnet checks the CIDR and pools of a new subnet. Without pools
// the whole prefix minus its first and last address is used.
func normalizeSubnet(subnet *domain.Subnet) error {
	prefix, err := netaddr.ParseIPPrefix(subnet.CIDR)
	if err != nil {
		return errors.Wrapf(domain.ErrValidation, "invalid cidr %q", subnet.CIDR)
	}
	subnet.CIDR = prefix.Masked().String()

	if subnet.GatewayIP != "" {
		gw, err := netaddr.ParseIP(subnet.GatewayIP)
		if err != nil || !prefix.Contains(gw) {
			return errors.Wrapf(domain.ErrValidation, "gateway %s is not in %s", subnet.GatewayIP, subnet.CIDR)
		}
	}

	if len(subnet.AllocationPools) == 0 {
		subnet.AllocationPools = []domain.Range{{
			FirstIP: prefix.Range().From().Next().String(),
			LastIP:  prefix.Range().To().Prior().String(),
		}}
		return nil
	}
	for _, pool := range subnet.AllocationPools {
		first, err := netaddr.ParseIP(pool.FirstIP)
		if err != nil {
			return &domain.AddressParseError{Value: pool.FirstIP}
		}
		last, err := netaddr.ParseIP(pool.LastIP)
		if err != nil {
			return &domain.AddressParseError{Value: pool.LastIP}
		}
		if !netaddr.IPRangeFrom(first, last).IsValid() || !prefix.Contains(first) || !prefix.Contains(last) {
			return errors.Wrapf(domain.ErrValidation, "allocation pool %s is not in %s", pool, subnet.CIDR)
		}
	}
	return nil
}

// CreateSubnet reserves the members of the subnet's network view and
// provisions the view, the network, the DNS view and one range per
// allocation pool, in that order.
func (uc *IPAMUseCase) CreateSubnet(ctx context.Context, subnet *domain.Subnet) (err error) {
	defer func() {
		uc.metrics.Subnets.WithLabelValues("create", metrics.Result(err)).Inc()
	}()

	if subnet.ID == "" {
		subnet.ID = uuid.New().String()
	}
	if err := normalizeSubnet(subnet); err != nil {
		return err
	}
	network, err := uc.GetNetwork(ctx, subnet.NetworkID)
	if err != nil {
		return err
	}
	if subnet.TenantID == "" {
		subnet.TenantID = network.TenantID
	}

	p, netView, dnsView, err := uc.views(ctx, subnet)
	if err != nil {
		return err
	}
	ctx = log.WithFields(ctx, logrus.Fields{
		"subnet.id":    subnet.ID,
		"subnet.cidr":  subnet.CIDR,
		"network_view": netView,
		"dns_view":     dnsView,
	})

	reserved, err := p.HasReservations(ctx)
	if err != nil {
		return err
	}
	exists, err := uc.dir.NetworkExists(ctx, netView, subnet.CIDR)
	if err != nil {
		return err
	}
	if err := uc.repo.SetNetworkView(ctx, network.ID, netView); err != nil {
		return err
	}
	subnet.NetworkView = netView

	backend := &domain.BackendNetwork{
		NetworkView: netView,
		CIDR:        subnet.CIDR,
		ExtAttrs:    networkAttrs(network, subnet),
	}
	if subnet.GatewayIP != "" {
		backend.Options = append(backend.Options, domain.DHCPOption{Name: "routers", Value: subnet.GatewayIP, UseOption: true})
	}

	var dhcpMembers, dnsMembers []domain.Member
	release := func(ctx context.Context) error {
		if reserved {
			return nil
		}
		return uc.releaseReservation(ctx, p, netView, subnet.ID)
	}

	f := flow.New("create-subnet")
	f.Add(flow.Step{
		Name: "reserve-dhcp-members",
		Do: func(ctx context.Context) error {
			var err error
			dhcpMembers, err = uc.reserve(ctx, p.ReserveDHCPMembers, domain.DHCPMember)
			if err != nil {
				if rerr := release(ctx); rerr != nil {
					log.G(ctx).WithError(rerr).Error("failed to release partial reservation")
				}
				return err
			}
			backend.SetDNSNameservers(nameservers(dhcpMembers, subnet.DNSNameservers))
			return nil
		},
		Undo: release,
	})
	f.Add(flow.Step{
		Name: "reserve-dns-members",
		Do: func(ctx context.Context) error {
			var err error
			dnsMembers, err = uc.reserve(ctx, p.ReserveDNSMembers, domain.DNSMember)
			return err
		},
	})
	f.Add(flow.Step{
		Name: "persist-subnet",
		Do:   func(ctx context.Context) error { return uc.repo.CreateSubnet(ctx, subnet) },
		Undo: func(ctx context.Context) error { return uc.repo.DeleteSubnet(ctx, subnet.ID) },
	})
	if exists {
		f.Add(flow.Step{
			Name: "chain-network",
			Do: func(ctx context.Context) error {
				log.G(ctx).Info("network already exists in directory, chaining subnet to it")
				return nil
			},
		})
	}
	if p.RequiresNetworkView() {
		f.Add(uc.networkViewStep(netView))
	}
	switch {
	case exists:
	case p.NetworkTemplate != "":
		f.Add(flow.Step{
			Name: "create-network-from-template",
			Do: func(ctx context.Context) error {
				return uc.dir.CreateNetworkFromTemplate(ctx, backend, p.NetworkTemplate)
			},
			Undo: func(ctx context.Context) error { return uc.dir.DeleteNetwork(ctx, netView, subnet.CIDR) },
		})
	default:
		f.Add(flow.Step{
			Name: "create-network",
			Do:   func(ctx context.Context) error { return uc.dir.CreateNetwork(ctx, backend, dhcpMembers) },
			Undo: func(ctx context.Context) error { return uc.dir.DeleteNetwork(ctx, netView, subnet.CIDR) },
		})
	}
	f.Add(flow.Step{
		Name: "create-dns-view",
		Do:   func(ctx context.Context) error { return uc.dir.CreateDNSView(ctx, netView, dnsView) },
	})
	for _, pool := range subnet.AllocationPools {
		pool := pool
		f.Add(flow.Step{
			Name: "create-range-" + pool.String(),
			Do: func(ctx context.Context) error {
				return uc.dir.CreateRange(ctx, netView, subnet.CIDR, pool.FirstIP, pool.LastIP, dhcpMembers, true)
			},
			Undo: func(ctx context.Context) error {
				return uc.dir.DeleteRange(ctx, netView, pool.FirstIP, pool.LastIP)
			},
		})
	}
	if !network.External && p.RequireDHCPRelay {
		f.Add(flow.Step{
			Name: "record-relay-servers",
			Do: func(ctx context.Context) error {
				if err := uc.repo.SetNetworkServers(ctx, network.ID, domain.DHCPMember, memberIPs(dhcpMembers)); err != nil {
					return err
				}
				return uc.repo.SetNetworkServers(ctx, network.ID, domain.DNSMember, memberIPs(dnsMembers))
			},
			Undo: func(ctx context.Context) error { return uc.repo.DeleteNetworkServers(ctx, network.ID) },
		})
	}

	if err := f.Run(ctx); err != nil {
		return err
	}
	log.G(ctx).Info("provisioned subnet")
	return nil
}

// releaseReservation drops the scope's members unless another subnet of
// the view has been created in the meantime.
func (uc *IPAMUseCase) releaseReservation(ctx context.Context, p *policy.Policy, netView, subnetID string) error {
	remaining, err := uc.repo.CountSubnetsInView(ctx, netView, subnetID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	log.G(ctx).Info("releasing members reserved for the failed subnet")
	return p.ReleaseMembers(ctx)
}

func (uc *IPAMUseCase) networkViewStep(netView string) flow.Step {
	created := false
	return flow.Step{
		Name: "create-network-view",
		Do: func(ctx context.Context) error {
			exists, err := uc.dir.NetworkViewExists(ctx, netView)
			if err != nil || exists {
				return err
			}
			if err := uc.dir.CreateNetworkView(ctx, netView); err != nil {
				return err
			}
			created = true
			return nil
		},
		Undo: func(ctx context.Context) error {
			if !created {
				return nil
			}
			return uc.dir.DeleteNetworkView(ctx, netView)
		},
	}
}

func (uc *IPAMUseCase) reserve(ctx context.Context, reserve func(context.Context) ([]domain.Member, error), memberType domain.MemberType) ([]domain.Member, error) {
	members, err := reserve(ctx)
	uc.metrics.Reservations.WithLabelValues(string(memberType), metrics.Result(err)).Inc()
	return members, err
}

// nameservers puts the member addresses first, followed by the sorted user
// nameservers.
func nameservers(members []domain.Member, user []string) []string {
	sorted := append([]string(nil), user...)
	sort.Strings(sorted)
	return append(memberIPs(members), sorted...)
}

func memberIPs(members []domain.Member) []string {
	ips := make([]string, 0, len(members))
	for _, m := range members {
		ips = append(ips, m.IPv4Addr)
	}
	return ips
}

// UpdateSubnet updates the name and nameservers of a subnet. The primary
// nameserver of the backend network is kept in front of the user ones.
func (uc *IPAMUseCase) UpdateSubnet(ctx context.Context, update *domain.Subnet) (err error) {
	defer func() {
		uc.metrics.Subnets.WithLabelValues("update", metrics.Result(err)).Inc()
	}()

	stored, err := uc.subnet(ctx, update.ID)
	if err != nil {
		return err
	}
	p, netView, _, err := uc.views(ctx, stored)
	if err != nil {
		return err
	}
	if err := p.VerifySubnetUpdateAllowed(update); err != nil {
		return err
	}

	backend, err := uc.dir.GetNetwork(ctx, netView, stored.CIDR)
	if err != nil {
		return err
	}
	user := append([]string(nil), update.DNSNameservers...)
	sort.Strings(user)

	updated := user
	if primary := primaryNameserver(backend); primary != "" {
		updated = []string{primary}
		for _, ns := range user {
			if ns != primary {
				updated = append(updated, ns)
			}
		}
	}
	backend.SetDNSNameservers(updated)

	network, err := uc.GetNetwork(ctx, stored.NetworkID)
	if err != nil {
		return err
	}
	if update.Name != "" {
		stored.Name = update.Name
	}
	stored.DNSNameservers = user
	if err := uc.dir.UpdateNetworkOptions(ctx, backend, networkAttrs(network, stored)); err != nil {
		return err
	}
	return uc.repo.UpdateSubnet(ctx, stored)
}

// primaryNameserver returns the member address when the network serves DNS
// from its member, or the relay address set in front of the nameservers.
func primaryNameserver(backend *domain.BackendNetwork) string {
	current := backend.DNSNameservers()
	if len(current) == 0 {
		return ""
	}
	if len(backend.MemberIPs) > 0 {
		for _, ns := range current {
			if ns == backend.MemberIPs[0] {
				return ns
			}
		}
		return current[0]
	}
	return ""
}

// SetRelayNameserver replaces the member addresses in the nameservers of
// the subnet's backend network by the DHCP relay address.
func (uc *IPAMUseCase) SetRelayNameserver(ctx context.Context, subnetID, relayIP string) error {
	if _, err := netaddr.ParseIP(relayIP); err != nil {
		return &domain.AddressParseError{Value: relayIP}
	}
	subnet, err := uc.subnet(ctx, subnetID)
	if err != nil {
		return err
	}
	p, netView, _, err := uc.views(ctx, subnet)
	if err != nil {
		return err
	}
	backend, err := uc.dir.GetNetwork(ctx, netView, subnet.CIDR)
	if err != nil {
		return err
	}
	if len(backend.MemberIPs) == 0 {
		return nil
	}
	if !backend.HasDNSOption() {
		log.G(ctx).WithField("subnet.id", subnetID).Debug("no domain-name-servers option, relay address not set")
		return nil
	}
	if p.RequireDHCPRelay {
		backend.ReplaceMemberNameservers(relayIP)
	}
	return uc.dir.UpdateNetworkOptions(ctx, backend, nil)
}

// DeleteSubnet removes the backend network of the subnet. Member
// reservations and relay servers go with the last subnet of the network
// view.
func (uc *IPAMUseCase) DeleteSubnet(ctx context.Context, id string) (err error) {
	defer func() {
		uc.metrics.Subnets.WithLabelValues("delete", metrics.Result(err)).Inc()
	}()

	subnet, err := uc.subnet(ctx, id)
	if err != nil {
		return err
	}
	p, netView, dnsView, err := uc.views(ctx, subnet)
	if err != nil {
		return err
	}
	ctx = log.WithFields(ctx, logrus.Fields{
		"subnet.id":    subnet.ID,
		"subnet.cidr":  subnet.CIDR,
		"network_view": netView,
	})

	if err := uc.dir.DeleteNetwork(ctx, netView, subnet.CIDR); err != nil {
		return err
	}

	remaining, err := uc.repo.CountSubnetsInView(ctx, netView, subnet.ID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if err := uc.releaseView(ctx, p, subnet); err != nil {
			return err
		}
	}

	if dnsView != domain.DefaultView {
		hasZones, err := uc.dir.HasDNSZones(ctx, dnsView)
		if err != nil {
			return err
		}
		if !hasZones {
			if err := uc.dir.DeleteDNSView(ctx, dnsView); err != nil {
				return err
			}
		}
	}

	if err := uc.repo.DeleteSubnet(ctx, subnet.ID); err != nil {
		return err
	}
	log.G(ctx).Info("deleted subnet")
	return nil
}

func (uc *IPAMUseCase) releaseView(ctx context.Context, p *policy.Policy, subnet *domain.Subnet) error {
	if err := p.ReleaseMembers(ctx); err != nil {
		return err
	}
	uc.metrics.Releases.Inc()

	network, err := uc.repo.GetNetwork(ctx, subnet.NetworkID)
	if err != nil {
		return err
	}
	if network != nil && !network.External && p.RequireDHCPRelay {
		return uc.repo.DeleteNetworkServers(ctx, network.ID)
	}
	return nil
}
