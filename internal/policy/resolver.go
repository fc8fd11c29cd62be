package policy

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/log"
	"github.com/zinrai/ddi-ipam-go/internal/members"
)

// Resolver matches subnets against the ordered conditional config.
type Resolver struct {
	rules   []Rule
	members *members.Manager
	lookup  NetworkLookup
}

func NewResolver(rules []Rule, mgr *members.Manager, lookup NetworkLookup) *Resolver {
	return &Resolver{
		rules:   rules,
		members: mgr,
		lookup:  lookup,
	}
}

func (r *Resolver) Rules() []Rule {
	return r.rules
}

// Resolve returns the policy of the first rule matching subnet.
func (r *Resolver) Resolve(ctx context.Context, subnet *domain.Subnet) (*Policy, error) {
	external, err := r.isExternal(ctx, subnet)
	if err != nil {
		return nil, err
	}

	for i, rule := range r.rules {
		if rule.IsExternal != external || !matches(rule.Condition, subnet) {
			continue
		}
		log.G(ctx).WithFields(logrus.Fields{
			"subnet.id":   subnet.ID,
			"subnet.cidr": subnet.CIDR,
			"condition":   rule.Condition,
			"rule":        i,
		}).Debug("matched conditional config")
		return newPolicy(rule, subnet, r.lookup, r.members), nil
	}
	return nil, &domain.NoConfigForSubnetError{SubnetID: subnet.ID, CIDR: subnet.CIDR}
}

func (r *Resolver) isExternal(ctx context.Context, subnet *domain.Subnet) (bool, error) {
	network, err := r.lookup.GetNetwork(ctx, subnet.NetworkID)
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up network of subnet %s", subnet.ID)
	}
	return network != nil && network.External, nil
}

func matches(condition string, subnet *domain.Subnet) bool {
	switch condition {
	case ConditionGlobal, ConditionTenant:
		return true
	}
	parts := strings.SplitN(condition, ":", 2)
	if len(parts) != 2 {
		return false
	}
	switch parts[0] {
	case ConditionTenantID:
		return subnet.TenantID == parts[1]
	case ConditionSubnetRange:
		return subnet.CIDR == parts[1]
	}
	return false
}
