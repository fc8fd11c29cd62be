package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// ConfigError reports an invalid configuration detected while loading.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Msg)
}

// ConfigNotFoundError reports a configuration source that is not set or
// cannot be read.
type ConfigNotFoundError struct {
	Object string
	Path   string
}

func (e *ConfigNotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config for %s not found", e.Object)
	}
	return fmt.Sprintf("config for %s not found at %s", e.Object, e.Path)
}

type InvalidMemberConfigError struct {
	Key string
}

func (e *InvalidMemberConfigError) Error() string {
	return fmt.Sprintf("invalid member config: missing key %q", e.Key)
}

type NoConfigForSubnetError struct {
	SubnetID string
	CIDR     string
}

func (e *NoConfigForSubnetError) Error() string {
	return fmt.Sprintf("no conditional config found for subnet %s (%s)", e.SubnetID, e.CIDR)
}

type NoMemberAvailableError struct {
	Scope string
	Type  MemberType
}

func (e *NoMemberAvailableError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("no %s member available", e.Type)
	}
	return fmt.Sprintf("no %s member available for %s", e.Type, e.Scope)
}

type ReservedMemberNotInRegistryError struct {
	Scope   string
	Type    MemberType
	Members []string
}

func (e *ReservedMemberNotInRegistryError) Error() string {
	return fmt.Sprintf("%s members %s reserved for %s are not in the member registry",
		e.Type, strings.Join(e.Members, ", "), e.Scope)
}

// MembersNotReservedError is raised when members of a scope are read before
// any reservation was made for it.
type MembersNotReservedError struct {
	Scope string
	Type  MemberType
}

func (e *MembersNotReservedError) Error() string {
	return fmt.Sprintf("%s members of %s read before reserve_%s_members was called", e.Type, e.Scope, e.Type)
}

// NoAddressAvailableError is the per range exhaustion reported by the
// appliance. It is the only allocation failure the orchestrator recovers
// from by moving to the next range.
type NoAddressAvailableError struct {
	NetworkView string
	FirstIP     string
	LastIP      string
}

func (e *NoAddressAvailableError) Error() string {
	return fmt.Sprintf("no free address in %s-%s of network view %s", e.FirstIP, e.LastIP, e.NetworkView)
}

type AllocationExhaustedError struct {
	NetworkView string
	CIDR        string
}

func (e *AllocationExhaustedError) Error() string {
	return fmt.Sprintf("network view %s, network %s does not have IPs available for allocation", e.NetworkView, e.CIDR)
}

type AddressParseError struct {
	Value string
}

func (e *AddressParseError) Error() string {
	return fmt.Sprintf("bad IP address: %q", e.Value)
}

type HostRecordNotPresentError struct{}

func (e *HostRecordNotPresentError) Error() string {
	return "cannot parse host record: addresses are absent"
}

type InvalidPatternError struct {
	Pattern string
	Msg     string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Msg)
}

type OperationNotAllowedError struct {
	Reason string
}

func (e *OperationNotAllowedError) Error() string {
	return fmt.Sprintf("requested operation is not allowed: %s", e.Reason)
}

// DirectoryError is a failed appliance call. Kind is one of ErrNotFound,
// ErrConflict or ErrValidation, or nil for unclassified failures.
type DirectoryError struct {
	Op     string
	Object string
	Code   int
	Body   string
	Kind   error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("cannot %s %s: %s [code %d]", e.Op, e.Object, e.Body, e.Code)
}

func (e *DirectoryError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

type ConnectionError struct {
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("directory request failed with: %s", e.Reason)
}

type TimeoutError struct{}

func (e *TimeoutError) Error() string {
	return "connection to directory service timed out"
}

type AuthenticationError struct{}

func (e *AuthenticationError) Error() string {
	return "directory service rejected the configured credentials"
}

// IsNoAddressAvailable reports whether err is a per range exhaustion.
func IsNoAddressAvailable(err error) bool {
	var target *NoAddressAvailableError
	return errors.As(err, &target)
}

// IsInfrastructure reports whether err comes from the transport to the
// directory service.
func IsInfrastructure(err error) bool {
	var (
		conn    *ConnectionError
		timeout *TimeoutError
		auth    *AuthenticationError
	)
	return errors.As(err, &conn) || errors.As(err, &timeout) || errors.As(err, &auth)
}
