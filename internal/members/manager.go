package members

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/log"
)

// Manager assigns registry members to scopes and keeps the mapping store
// consistent with the registry.
type Manager struct {
	registry *Registry
	repo     domain.MemberMappingRepository
}

// NewManager returns a Manager reserving members of registry in repo.
func NewManager(registry *Registry, repo domain.MemberMappingRepository) *Manager {
	return &Manager{registry: registry, repo: repo}
}

// Registry returns the member catalog the manager reserves from.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Find returns the members reserved for scope, resolved against the
// registry. An empty result means nothing is reserved yet.
func (m *Manager) Find(ctx context.Context, scope string, memberType domain.MemberType) ([]domain.Member, error) {
	names, err := m.repo.FindMappings(ctx, scope, memberType)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to find %s members of %s", memberType, scope)
	}

	var (
		found   []domain.Member
		missing []string
	)
	for _, name := range names {
		member, ok := m.registry.Get(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		member.MapID = scope
		found = append(found, member)
	}
	if len(missing) > 0 {
		return nil, &domain.ReservedMemberNotInRegistryError{Scope: scope, Type: memberType, Members: missing}
	}
	return found, nil
}

// Get returns the registry member called name.
func (m *Manager) Get(name string) (domain.Member, error) {
	member, ok := m.registry.Get(name)
	if !ok {
		return domain.Member{}, unknownMember(name)
	}
	return member, nil
}

// NextAvailable returns the first candidate not mapped for memberType in any
// scope. A nil candidate list scans the whole registry in load order.
func (m *Manager) NextAvailable(ctx context.Context, candidates []string, memberType domain.MemberType) (domain.Member, error) {
	return m.nextAvailable(ctx, candidates, memberType, nil)
}

func (m *Manager) nextAvailable(ctx context.Context, candidates []string, memberType domain.MemberType, skip map[string]bool) (domain.Member, error) {
	if candidates == nil {
		candidates = m.registry.Names()
	}

	used, err := m.repo.UsedMembers(ctx, memberType)
	if err != nil {
		return domain.Member{}, errors.Wrapf(err, "failed to list used %s members", memberType)
	}
	reserved := make(map[string]bool, len(used))
	for _, name := range used {
		reserved[name] = true
	}

	for _, name := range candidates {
		if reserved[name] || skip[name] {
			continue
		}
		member, ok := m.registry.Get(name)
		if !ok {
			continue
		}
		return member, nil
	}
	return domain.Member{}, &domain.NoMemberAvailableError{Type: memberType}
}

// Reserve maps name to scope. Reserving an existing mapping again is a
// no-op.
func (m *Manager) Reserve(ctx context.Context, scope, name string, memberType domain.MemberType) error {
	if _, ok := m.registry.Get(name); !ok {
		return unknownMember(name)
	}
	err := m.repo.InsertMapping(ctx, domain.MemberMapping{MapID: scope, MemberName: name, Type: memberType})
	if err != nil {
		return errors.Wrapf(err, "failed to reserve %s member %s for %s", memberType, name, scope)
	}
	log.G(ctx).WithFields(logrus.Fields{
		"member":       name,
		"member.type":  memberType,
		"network_view": scope,
	}).Info("reserved member")
	return nil
}

// ReserveNextAvailable reserves one unclaimed candidate for scope. When
// another writer maps the scope first, its reservation is returned. When
// another scope claims the chosen member first, the next candidate is
// tried.
func (m *Manager) ReserveNextAvailable(ctx context.Context, scope string, candidates []string, memberType domain.MemberType) ([]domain.Member, error) {
	attempts := len(candidates)
	if candidates == nil {
		attempts = m.registry.Len()
	}

	skip := make(map[string]bool)
	for i := 0; i <= attempts; i++ {
		existing, err := m.Find(ctx, scope, memberType)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return existing, nil
		}

		member, err := m.nextAvailable(ctx, candidates, memberType, skip)
		if err != nil {
			var noMember *domain.NoMemberAvailableError
			if errors.As(err, &noMember) {
				noMember.Scope = scope
			}
			return nil, err
		}

		inserted, err := m.repo.InsertExclusiveMapping(ctx, domain.MemberMapping{
			MapID:      scope,
			MemberName: member.Name,
			Type:       memberType,
			Exclusive:  true,
		})
		switch {
		case errors.Is(err, domain.ErrConflict):
			log.G(ctx).WithFields(logrus.Fields{
				"member":      member.Name,
				"member.type": memberType,
			}).Debug("member claimed concurrently, trying next candidate")
			skip[member.Name] = true
			continue
		case err != nil:
			return nil, errors.Wrapf(err, "failed to reserve %s member %s for %s", memberType, member.Name, scope)
		case !inserted:
			// another writer reserved this scope, adopt its mapping
			continue
		}

		log.G(ctx).WithFields(logrus.Fields{
			"member":       member.Name,
			"member.type":  memberType,
			"network_view": scope,
		}).Info("reserved next available member")
		member.MapID = scope
		return []domain.Member{member}, nil
	}
	return nil, &domain.NoMemberAvailableError{Scope: scope, Type: memberType}
}

// Release drops every mapping of scope, for both member types.
func (m *Manager) Release(ctx context.Context, scope string) error {
	if err := m.repo.DeleteMappings(ctx, scope); err != nil {
		return errors.Wrapf(err, "failed to release members of %s", scope)
	}
	log.G(ctx).WithField("network_view", scope).Info("released members")
	return nil
}

func unknownMember(name string) error {
	return &domain.ConfigError{Msg: "member " + name + " is not in the member registry"}
}
