package allocator

import (
	"context"

	"github.com/zinrai/ddi-ipam-go/internal/config"
	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

// AddressRequest asks for one specific address.
type AddressRequest struct {
	NetworkView string
	DNSView     string
	Zone        string
	Hostname    string
	MAC         string
	Address     string
	ExtAttrs    domain.ExtAttrs
}

// Strategy turns allocation decisions into directory calls.
type Strategy interface {
	AllocateFromRange(ctx context.Context, req domain.RangeRequest) (string, error)
	AllocateGivenAddress(ctx context.Context, req AddressRequest) (string, error)
	Deallocate(ctx context.Context, networkView, dnsView, ip string) error
	BindName(ctx context.Context, dnsView, ip, fqdn string) error
	UnbindName(ctx context.Context, dnsView, ip, fqdn string) error
	UpdateAttributes(ctx context.Context, networkView, dnsView, ip string, attrs domain.ExtAttrs) error
	Name() string
}

// New selects the strategy configured for the deployment.
func New(cfg config.AllocationConfig, dir domain.DirectoryService) Strategy {
	if cfg.UseHostRecords {
		return NewHostRecordStrategy(dir)
	}
	return NewFixedAddressStrategy(dir, cfg.BindDNSRecords, cfg.UnbindDNSRecords, cfg.DeleteDNSRecords)
}

// Outcome classifies one range attempt.
type Outcome int

const (
	Allocated Outcome = iota
	Exhausted
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Allocated:
		return "allocated"
	case Exhausted:
		return "exhausted"
	default:
		return "failed"
	}
}

// RangeResult is the outcome of allocating from one range. Address is set
// when Allocated, Err otherwise.
type RangeResult struct {
	Outcome Outcome
	Address string
	Err     error
}

// TryRange allocates from a single range. Only a per range exhaustion is
// reported as Exhausted; every other failure is Failed.
func TryRange(ctx context.Context, s Strategy, req domain.RangeRequest) RangeResult {
	ip, err := s.AllocateFromRange(ctx, req)
	switch {
	case err == nil:
		return RangeResult{Outcome: Allocated, Address: ip}
	case domain.IsNoAddressAvailable(err):
		return RangeResult{Outcome: Exhausted, Err: err}
	default:
		return RangeResult{Outcome: Failed, Err: err}
	}
}
