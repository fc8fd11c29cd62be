package policy

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

const (
	ConditionGlobal = "global"
	ConditionTenant = "tenant"

	ConditionTenantID    = "tenant_id"
	ConditionSubnetRange = "subnet_range"

	defaultDomainSuffixPattern = "global.com"
	defaultHostnamePattern     = "host-{ip_address}.{subnet_name}"
)

var (
	staticConditions   = []string{ConditionGlobal, ConditionTenant}
	variableConditions = []string{ConditionTenantID, ConditionSubnetRange}

	networkViewTemplates = []string{"{tenant_id}", "{network_name}", "{network_id}"}
)

// MemberSpec selects the members of a scope: the next available registry
// member, or named members.
type MemberSpec struct {
	NextAvailable bool
	Names         []string
	// Single is set when the members were given as one name rather than a list.
	Single bool
}

func (s MemberSpec) String() string {
	if s.NextAvailable {
		return domain.NextAvailableMember
	}
	return strings.Join(s.Names, ",")
}

func (s MemberSpec) Equal(o MemberSpec) bool {
	if s.NextAvailable != o.NextAvailable || s.Single != o.Single || len(s.Names) != len(o.Names) {
		return false
	}
	for i := range s.Names {
		if s.Names[i] != o.Names[i] {
			return false
		}
	}
	return true
}

func (s *MemberSpec) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		if name == domain.NextAvailableMember {
			*s = MemberSpec{NextAvailable: true}
		} else {
			*s = MemberSpec{Names: []string{name}, Single: true}
		}
		return nil
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return errors.New("members must be a name, a list of names or " + domain.NextAvailableMember)
	}
	*s = MemberSpec{Names: names}
	return nil
}

// Rule is one entry of the conditional config file.
type Rule struct {
	Condition           string      `json:"condition"`
	IsExternal          bool        `json:"is_external"`
	NetworkView         string      `json:"network_view"`
	DNSView             string      `json:"dns_view"`
	RequireDHCPRelay    bool        `json:"require_dhcp_relay"`
	DHCPMembers         *MemberSpec `json:"dhcp_members"`
	DNSMembers          *MemberSpec `json:"dns_members"`
	DomainSuffixPattern string      `json:"domain_suffix_pattern"`
	HostnamePattern     string      `json:"hostname_pattern"`
	NetworkTemplate     string      `json:"network_template"`
	NSGroup             string      `json:"ns_group"`
}

// applyDefaults fills the keys the rule file left out.
func (r *Rule) applyDefaults() {
	if r.NetworkView == "" {
		r.NetworkView = domain.DefaultView
	}
	if r.DNSView == "" {
		r.DNSView = domain.DefaultView
	}
	if r.DHCPMembers == nil {
		r.DHCPMembers = &MemberSpec{NextAvailable: true}
	}
	if r.DNSMembers == nil {
		dns := *r.DHCPMembers
		r.DNSMembers = &dns
	}
	if r.DomainSuffixPattern == "" {
		r.DomainSuffixPattern = defaultDomainSuffixPattern
	}
	if r.HostnamePattern == "" {
		r.HostnamePattern = defaultHostnamePattern
	}
}

func (r *Rule) validate() error {
	if !validCondition(r.Condition) {
		return &domain.ConfigError{Msg: "Invalid condition specified: " + r.Condition}
	}
	if err := validateNetworkView(r.NetworkView); err != nil {
		return err
	}
	for _, spec := range []struct {
		name     string
		members  *MemberSpec
		template string
	}{
		{"dhcp_members", r.DHCPMembers, r.NetworkTemplate},
		{"dns_members", r.DNSMembers, r.NSGroup},
	} {
		if spec.members.NextAvailable || len(spec.members.Names) > 0 {
			continue
		}
		if spec.template != "" {
			return &domain.ConfigError{Msg: "Member MUST be configured for " + spec.template}
		}
		return &domain.ConfigError{Msg: spec.name + " must not be empty"}
	}
	return nil
}

func validCondition(cond string) bool {
	if strings.Contains(cond, ":") {
		parts := strings.SplitN(cond, ":", 2)
		for _, v := range variableConditions {
			if parts[0] == v && parts[1] != "" {
				return true
			}
		}
		return false
	}
	for _, s := range staticConditions {
		if cond == s {
			return true
		}
	}
	return false
}

func validateNetworkView(view string) error {
	if !strings.HasPrefix(view, "{") {
		return nil
	}
	for _, t := range networkViewTemplates {
		if view == t {
			return nil
		}
	}
	return &domain.ConfigError{Msg: "Invalid value for 'network_view': " + view}
}

// LoadRulesFile reads the conditional config from path.
func LoadRulesFile(path string) ([]Rule, error) {
	if path == "" {
		return nil, &domain.ConfigNotFoundError{Object: "conditional config"}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.ConfigNotFoundError{Object: "conditional config", Path: path}
	}
	defer f.Close()
	return LoadRules(f)
}

// LoadRules parses and validates an ordered list of rules. Every condition
// is checked here so that a bad rule fails startup rather than a request.
func LoadRules(r io.Reader) ([]Rule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read conditional config")
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &domain.ConfigError{Msg: errors.Wrap(err, "invalid conditional config").Error()}
	}

	rules := make([]Rule, 0, len(raw))
	for i, entry := range raw {
		if _, ok := entry["condition"]; !ok {
			return nil, &domain.ConfigError{Msg: "Missing mandatory 'condition' option"}
		}
		rule, err := decodeRule(i, entry)
		if err != nil {
			return nil, err
		}
		rule.applyDefaults()
		if err := rule.validate(); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func decodeRule(i int, entry map[string]json.RawMessage) (Rule, error) {
	var rule Rule
	encoded, err := json.Marshal(entry)
	if err != nil {
		return rule, &domain.ConfigError{Msg: errors.Wrapf(err, "invalid rule %d", i).Error()}
	}
	if err := json.Unmarshal(encoded, &rule); err != nil {
		return rule, &domain.ConfigError{Msg: errors.Wrapf(err, "invalid rule %d", i).Error()}
	}
	return rule, nil
}
