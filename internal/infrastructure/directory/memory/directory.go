package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"inet.af/netaddr"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

var _ domain.DirectoryService = (*Directory)(nil)

type hostEntry struct {
	record      *domain.HostRecord
	networkView string
}

type dnsRecord struct {
	ref     string
	kind    string
	dnsView string
	name    string
	address string
	attrs   domain.ExtAttrs
}

type rangeEntry struct {
	networkView string
	cidr        string
	r           netaddr.IPRange
	members     []string
	disabled    bool
}

// Directory is an in-process directory appliance. It keeps network views,
// networks, ranges, host records, fixed addresses and DNS records in maps
// and hands out addresses from ranges in ascending order.
type Directory struct {
	mu sync.Mutex

	configureForDHCP bool

	networkViews map[string]bool
	dnsViews     map[string]string
	networks     map[string]*domain.BackendNetwork
	templates    map[string]string
	ranges       []rangeEntry
	hosts        map[string]*hostEntry
	fixed        map[string]*domain.FixedAddress
	records      map[string]*dnsRecord
	used         map[string]map[netaddr.IP]string
	restarts     [][]string

	failures map[string]error
	seq      int
}

// New returns an empty directory with the default network view.
func New(configureForDHCP bool) *Directory {
	return &Directory{
		configureForDHCP: configureForDHCP,
		networkViews:     map[string]bool{domain.DefaultView: true},
		dnsViews:         map[string]string{domain.DefaultView: domain.DefaultView},
		networks:         make(map[string]*domain.BackendNetwork),
		templates:        make(map[string]string),
		hosts:            make(map[string]*hostEntry),
		fixed:            make(map[string]*domain.FixedAddress),
		records:          make(map[string]*dnsRecord),
		used:             make(map[string]map[netaddr.IP]string),
		failures:         make(map[string]error),
	}
}

// Fail makes every later call of op return err until Recover is called.
func (d *Directory) Fail(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = err
}

func (d *Directory) Recover(op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failures, op)
}

// Restarts returns the member names of every RestartServices call.
func (d *Directory) Restarts() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]string(nil), d.restarts...)
}

// Template returns the template a network was created from.
func (d *Directory) Template(networkView, cidr string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.templates[networkKey(networkView, cidr)]
}

// Ranges lists the ranges of a network view as first-last strings.
func (d *Directory) Ranges(networkView string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, r := range d.ranges {
		if r.networkView == networkView {
			out = append(out, r.r.From().String()+"-"+r.r.To().String())
		}
	}
	return out
}

// DNSViewExists reports whether dnsView was created.
func (d *Directory) DNSViewExists(dnsView string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.dnsViews[dnsView]
	return ok
}

func (d *Directory) failure(op string) error {
	return d.failures[op]
}

func (d *Directory) nextRef(kind, name, view string) string {
	d.seq++
	return fmt.Sprintf("%s/%d:%s/%s", kind, d.seq, name, view)
}

func networkKey(view, cidr string) string {
	return view + "|" + cidr
}

// networkViewOf maps a DNS view to the network view it was created in.
func (d *Directory) networkViewOf(dnsView string) string {
	if view, ok := d.dnsViews[dnsView]; ok {
		return view
	}
	return domain.DefaultView
}

func parseIP(s string) (netaddr.IP, error) {
	ip, err := netaddr.ParseIP(s)
	if err != nil {
		return netaddr.IP{}, &domain.AddressParseError{Value: s}
	}
	return ip, nil
}

func (d *Directory) usedIn(view string) map[netaddr.IP]string {
	used, ok := d.used[view]
	if !ok {
		used = make(map[netaddr.IP]string)
		d.used[view] = used
	}
	return used
}

func (d *Directory) claim(view, address, owner string) error {
	ip, err := parseIP(address)
	if err != nil {
		return err
	}
	used := d.usedIn(view)
	if holder, ok := used[ip]; ok && holder != owner {
		return &domain.DirectoryError{
			Op:     "create",
			Object: "address " + address,
			Code:   400,
			Body:   "address is already in use in network view " + view,
			Kind:   domain.ErrConflict,
		}
	}
	used[ip] = owner
	return nil
}

func (d *Directory) release(view, address string) {
	ip, err := netaddr.ParseIP(address)
	if err != nil {
		return
	}
	delete(d.usedIn(view), ip)
}

// nextFree returns the lowest unused address between first and last.
func (d *Directory) nextFree(view, first, last, owner string) (string, error) {
	from, err := parseIP(first)
	if err != nil {
		return "", err
	}
	to, err := parseIP(last)
	if err != nil {
		return "", err
	}
	r := netaddr.IPRangeFrom(from, to)
	if !r.IsValid() {
		return "", &domain.DirectoryError{
			Op:     "allocate",
			Object: "address",
			Code:   400,
			Body:   "invalid range " + first + "-" + last,
			Kind:   domain.ErrValidation,
		}
	}

	used := d.usedIn(view)
	for ip := r.From(); ; ip = ip.Next() {
		if _, ok := used[ip]; !ok {
			used[ip] = owner
			return ip.String(), nil
		}
		if ip == r.To() {
			break
		}
	}
	return "", &domain.NoAddressAvailableError{NetworkView: view, FirstIP: first, LastIP: last}
}

func notFound(op, object string) error {
	return &domain.DirectoryError{Op: op, Object: object, Code: 404, Body: "object not found", Kind: domain.ErrNotFound}
}

func copyAttrs(attrs domain.ExtAttrs) domain.ExtAttrs {
	if attrs == nil {
		return nil
	}
	c := make(domain.ExtAttrs, len(attrs))
	for k, v := range attrs {
		c[k] = v
	}
	return c
}

func sortedKeys(m map[string]*dnsRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RestartServices records a restart of the given members.
func (d *Directory) RestartServices(ctx context.Context, members []domain.Member) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("RestartServices"); err != nil {
		return err
	}
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	d.restarts = append(d.restarts, names)
	return nil
}
