package policy

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]*)\}`)

// BuildOptions carries the optional values of a pattern.
type BuildOptions struct {
	Port      *domain.Port
	IPAddress string
	UserID    string
}

// PatternBuilder renders domain suffix and host name patterns.
type PatternBuilder struct {
	pattern string
	lookup  NetworkLookup
}

// NewPatternBuilder joins parts with dots. Empty parts are skipped.
func NewPatternBuilder(lookup NetworkLookup, parts ...string) *PatternBuilder {
	var kept []string
	for _, p := range parts {
		p = strings.Trim(p, ".")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return &PatternBuilder{pattern: strings.Join(kept, "."), lookup: lookup}
}

func (b *PatternBuilder) Pattern() string {
	return b.pattern
}

// Build substitutes every placeholder of the pattern.
func (b *PatternBuilder) Build(ctx context.Context, subnet *domain.Subnet, opts BuildOptions) (string, error) {
	if strings.Contains(b.pattern, "..") {
		return "", &domain.InvalidPatternError{Pattern: b.pattern, Msg: "Invalid value .."}
	}

	values := map[string]string{
		"network_id":  subnet.NetworkID,
		"tenant_id":   subnet.TenantID,
		"subnet_name": subnet.DisplayName(),
		"subnet_id":   subnet.ID,
		"user_id":     opts.UserID,
	}
	if opts.IPAddress != "" {
		values["ip_address"] = strings.Replace(opts.IPAddress, ".", "-", -1)
		for i, octet := range strings.Split(opts.IPAddress, ".") {
			values[fmt.Sprintf("ip_address_octet%d", i+1)] = octet
		}
	}
	if opts.Port != nil {
		values["port_id"] = opts.Port.ID
		values["instance_id"] = opts.Port.DeviceID
		values["instance_name"] = opts.Port.InstanceName
	}

	if strings.Contains(b.pattern, "{network_name}") {
		name, err := networkName(ctx, b.lookup, subnet)
		if err != nil {
			return "", err
		}
		values["network_name"] = name
	}

	var unknown string
	out := placeholderRe.ReplaceAllStringFunc(b.pattern, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := values[key]
		if !ok {
			if unknown == "" {
				unknown = key
			}
			return m
		}
		return v
	})
	if unknown != "" {
		return "", &domain.InvalidPatternError{Pattern: b.pattern, Msg: "unknown placeholder " + unknown}
	}
	return out, nil
}
