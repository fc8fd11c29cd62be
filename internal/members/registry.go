package members

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

type memberRecord struct {
	Name        *string `json:"name"`
	IPv4Addr    *string `json:"ipv4addr"`
	IPv6Addr    string  `json:"ipv6addr"`
	IsAvailable *bool   `json:"is_available"`
	Delegate    bool    `json:"delegate"`
}

// Registry is the static catalog of available members, in load order. It
// is never mutated after Load.
type Registry struct {
	members []domain.Member
	byName  map[string]int
}

// LoadFile reads the member catalog from path.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return nil, &domain.ConfigNotFoundError{Object: "members"}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.ConfigNotFoundError{Object: "members", Path: path}
	}
	defer f.Close()
	return Load(f)
}

// Load parses a JSON list of members. Members flagged with
// is_available=false are dropped.
func Load(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read member config")
	}

	var records []memberRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &domain.ConfigError{Msg: errors.Wrap(err, "invalid member config").Error()}
	}

	reg := &Registry{byName: make(map[string]int)}
	for _, rec := range records {
		if rec.Name == nil {
			return nil, &domain.InvalidMemberConfigError{Key: "name"}
		}
		if rec.IPv4Addr == nil {
			return nil, &domain.InvalidMemberConfigError{Key: "ipv4addr"}
		}
		if rec.IsAvailable != nil && !*rec.IsAvailable {
			continue
		}
		if _, dup := reg.byName[*rec.Name]; dup {
			return nil, &domain.ConfigError{Msg: "duplicate member " + *rec.Name}
		}
		reg.byName[*rec.Name] = len(reg.members)
		reg.members = append(reg.members, domain.Member{
			Name:     *rec.Name,
			IPv4Addr: *rec.IPv4Addr,
			IPv6Addr: rec.IPv6Addr,
			Delegate: rec.Delegate,
		})
	}
	return reg, nil
}

// NewRegistry builds a registry from members already in memory.
func NewRegistry(members ...domain.Member) *Registry {
	reg := &Registry{byName: make(map[string]int)}
	for _, m := range members {
		reg.byName[m.Name] = len(reg.members)
		reg.members = append(reg.members, m)
	}
	return reg
}

// Get returns the member named name.
func (r *Registry) Get(name string) (domain.Member, bool) {
	i, ok := r.byName[name]
	if !ok {
		return domain.Member{}, false
	}
	return r.members[i], true
}

// Names returns member names in load order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.members))
	for i, m := range r.members {
		names[i] = m.Name
	}
	return names
}

// Members returns a copy of the catalog in load order.
func (r *Registry) Members() []domain.Member {
	out := make([]domain.Member, len(r.members))
	copy(out, r.members)
	return out
}

// Len returns the number of available members.
func (r *Registry) Len() int {
	return len(r.members)
}
