package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/log"
	"github.com/zinrai/ddi-ipam-go/internal/members"
)

// NetworkLookup resolves the network a subnet belongs to.
type NetworkLookup interface {
	GetNetwork(ctx context.Context, id string) (*domain.Network, error)
}

// Policy is a rule bound to one subnet. It lives for a single request; the
// network view is resolved once and memoized on the value.
type Policy struct {
	Rule

	subnet  *domain.Subnet
	lookup  NetworkLookup
	members *members.Manager

	networkView string
}

func newPolicy(rule Rule, subnet *domain.Subnet, lookup NetworkLookup, mgr *members.Manager) *Policy {
	return &Policy{
		Rule:    rule,
		subnet:  subnet,
		lookup:  lookup,
		members: mgr,
	}
}

func (p *Policy) Subnet() *domain.Subnet {
	return p.subnet
}

func (p *Policy) IsGlobal() bool {
	return p.Condition == ConditionGlobal
}

// RequiresNetworkView reports whether subnet creation provisions the network
// view.
func (p *Policy) RequiresNetworkView() bool {
	return true
}

// NetworkView resolves the configured network view for the subnet.
func (p *Policy) NetworkView(ctx context.Context) (string, error) {
	if p.networkView != "" {
		return p.networkView, nil
	}

	view := p.Rule.NetworkView
	switch view {
	case "{tenant_id}":
		view = p.subnet.TenantID
	case "{network_id}":
		view = p.subnet.NetworkID
	case "{network_name}":
		name, err := networkName(ctx, p.lookup, p.subnet)
		if err != nil {
			return "", err
		}
		view = name
	default:
		if err := validateNetworkView(view); err != nil {
			return "", err
		}
	}
	if view == "" {
		return "", &domain.ConfigError{Msg: fmt.Sprintf("network_view %s resolved to an empty name for subnet %s", p.Rule.NetworkView, p.subnet.ID)}
	}

	p.networkView = view
	return view, nil
}

// DNSView returns the configured DNS view, qualified by the network view
// unless the latter is the default one.
func (p *Policy) DNSView(ctx context.Context) (string, error) {
	netView, err := p.NetworkView(ctx)
	if err != nil {
		return "", err
	}
	if netView == domain.DefaultView {
		return p.Rule.DNSView, nil
	}
	return p.Rule.DNSView + "." + netView, nil
}

// ConfiguredDNSView is the DNS view as written in the rule.
func (p *Policy) ConfiguredDNSView() string {
	return p.Rule.DNSView
}

// ReserveDHCPMembers reserves the DHCP members of the network view scope,
// or returns the ones already reserved.
func (p *Policy) ReserveDHCPMembers(ctx context.Context) ([]domain.Member, error) {
	return p.reserve(ctx, *p.Rule.DHCPMembers, p.NetworkTemplate, domain.DHCPMember)
}

// ReserveDNSMembers reserves the DNS members of the network view scope,
// or returns the ones already reserved.
func (p *Policy) ReserveDNSMembers(ctx context.Context) ([]domain.Member, error) {
	return p.reserve(ctx, *p.Rule.DNSMembers, p.NSGroup, domain.DNSMember)
}

// DHCPMembers returns the reserved DHCP members. Reading them before
// ReserveDHCPMembers is a programming error.
func (p *Policy) DHCPMembers(ctx context.Context) ([]domain.Member, error) {
	return p.reserved(ctx, domain.DHCPMember)
}

// DNSMembers returns the reserved DNS members. Reading them before
// ReserveDNSMembers is a programming error.
func (p *Policy) DNSMembers(ctx context.Context) ([]domain.Member, error) {
	return p.reserved(ctx, domain.DNSMember)
}

// ReleaseMembers drops every reservation of the network view scope.
func (p *Policy) ReleaseMembers(ctx context.Context) error {
	scope, err := p.NetworkView(ctx)
	if err != nil {
		return err
	}
	return p.members.Release(ctx, scope)
}

// HasReservations reports whether the network view scope holds a member
// of either type.
func (p *Policy) HasReservations(ctx context.Context) (bool, error) {
	scope, err := p.NetworkView(ctx)
	if err != nil {
		return false, err
	}
	for _, memberType := range []domain.MemberType{domain.DHCPMember, domain.DNSMember} {
		found, err := p.members.Find(ctx, scope, memberType)
		if err != nil {
			return false, err
		}
		if len(found) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (p *Policy) reserved(ctx context.Context, memberType domain.MemberType) ([]domain.Member, error) {
	scope, err := p.NetworkView(ctx)
	if err != nil {
		return nil, err
	}
	found, err := p.members.Find(ctx, scope, memberType)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, &domain.MembersNotReservedError{Scope: scope, Type: memberType}
	}
	return found, nil
}

func (p *Policy) reserve(ctx context.Context, spec MemberSpec, template string, memberType domain.MemberType) ([]domain.Member, error) {
	scope, err := p.NetworkView(ctx)
	if err != nil {
		return nil, err
	}
	ctx = log.WithFields(ctx, logrus.Fields{
		"network_view": scope,
		"member.type":  memberType,
	})

	existing, err := p.members.Find(ctx, scope, memberType)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	switch {
	case spec.NextAvailable:
		return p.members.ReserveNextAvailable(ctx, scope, nil, memberType)
	case !spec.Single:
		return p.reserveList(ctx, scope, spec.Names, memberType)
	case template != "":
		return p.reserveByTemplate(ctx, scope, spec, template, memberType)
	default:
		return p.reserveList(ctx, scope, spec.Names, memberType)
	}
}

func (p *Policy) reserveList(ctx context.Context, scope string, names []string, memberType domain.MemberType) ([]domain.Member, error) {
	reserved := make([]domain.Member, 0, len(names))
	for _, name := range names {
		member, err := p.members.Get(name)
		if err != nil {
			return nil, err
		}
		reserved = append(reserved, member)
	}
	for i := range reserved {
		if err := p.members.Reserve(ctx, scope, reserved[i].Name, memberType); err != nil {
			return nil, err
		}
		reserved[i].MapID = scope
	}
	return reserved, nil
}

func (p *Policy) reserveByTemplate(ctx context.Context, scope string, spec MemberSpec, template string, memberType domain.MemberType) ([]domain.Member, error) {
	if len(spec.Names) != 1 {
		return nil, &domain.ConfigError{Msg: "Member MUST be configured for " + template}
	}
	member, err := p.members.Get(spec.Names[0])
	if err != nil {
		return nil, err
	}
	if err := p.members.Reserve(ctx, scope, member.Name, memberType); err != nil {
		return nil, err
	}
	log.G(ctx).WithField("template", template).Debug("reserved template member")
	member.MapID = scope
	return []domain.Member{member}, nil
}

// VerifySubnetUpdateAllowed refuses renaming a subnet whose name is part of
// the provisioned DNS domain.
func (p *Policy) VerifySubnetUpdateAllowed(updated *domain.Subnet) error {
	if p.subnet.Name != "" && updated.Name != "" && p.subnet.Name != updated.Name &&
		strings.Contains(p.DomainSuffixPattern, "{subnet_name}") {
		return &domain.OperationNotAllowedError{Reason: "subnet_name is in domain name pattern"}
	}
	return nil
}

// VerifyNetworkRenameAllowed refuses renaming a network whose name is part
// of the provisioned DNS domain.
func (p *Policy) VerifyNetworkRenameAllowed(oldName, newName string) error {
	if oldName != "" && newName != "" && oldName != newName &&
		strings.Contains(p.DomainSuffixPattern, "{network_name}") {
		return &domain.OperationNotAllowedError{Reason: "network_name is in domain name pattern"}
	}
	return nil
}

// Equal compares the defining attributes of two policies.
func (p *Policy) Equal(o *Policy) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.Condition == o.Condition &&
		p.Rule.DHCPMembers.Equal(*o.Rule.DHCPMembers) &&
		p.Rule.DNSMembers.Equal(*o.Rule.DNSMembers) &&
		p.Rule.NetworkView == o.Rule.NetworkView &&
		p.Rule.DNSView == o.Rule.DNSView
}

func (p *Policy) String() string {
	return fmt.Sprintf("ConditionalConfig(condition=%s, dhcp_members=%s, dns_members=%s, net_view=%s, dns_view=%s)",
		p.Condition, p.Rule.DHCPMembers, p.Rule.DNSMembers, p.Rule.NetworkView, p.Rule.DNSView)
}

func networkName(ctx context.Context, lookup NetworkLookup, subnet *domain.Subnet) (string, error) {
	network, err := lookup.GetNetwork(ctx, subnet.NetworkID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to look up network of subnet %s", subnet.ID)
	}
	if network == nil {
		return "", errors.Wrapf(domain.ErrNotFound, "network %s of subnet %s", subnet.NetworkID, subnet.ID)
	}
	return network.Name, nil
}
