package persistence

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/infrastructure/db"
)

var (
	_ domain.NetworkRepository       = (*IPAMRepository)(nil)
	_ domain.MemberMappingRepository = (*IPAMRepository)(nil)
)

// IPAMRepository stores networks, subnets, allocations and member
// mappings in postgres or sqlite3.
type IPAMRepository struct {
	db *db.DB
}

func NewIPAMRepository(db *db.DB) *IPAMRepository {
	return &IPAMRepository{db: db}
}

func (r *IPAMRepository) CreateNetwork(ctx context.Context, network *domain.Network) error {
	query := `INSERT INTO networks (id, name, tenant_id, external, network_view) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, network.ID, network.Name, network.TenantID, network.External, network.NetworkView)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errors.Wrapf(domain.ErrConflict, "network %s already exists", network.ID)
		}
		return errors.Wrap(err, "failed to create network")
	}
	return nil
}

func (r *IPAMRepository) GetNetwork(ctx context.Context, id string) (*domain.Network, error) {
	query := `SELECT id, name, tenant_id, external, network_view FROM networks WHERE id = $1`
	var network domain.Network
	err := r.db.QueryRowContext(ctx, query, id).Scan(&network.ID, &network.Name, &network.TenantID, &network.External, &network.NetworkView)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get network")
	}
	return &network, nil
}

func (r *IPAMRepository) ListNetworks(ctx context.Context) ([]*domain.Network, error) {
	query := `SELECT id, name, tenant_id, external, network_view FROM networks ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list networks")
	}
	defer rows.Close()

	var networks []*domain.Network
	for rows.Next() {
		var network domain.Network
		if err := rows.Scan(&network.ID, &network.Name, &network.TenantID, &network.External, &network.NetworkView); err != nil {
			return nil, errors.Wrap(err, "failed to scan network row")
		}
		networks = append(networks, &network)
	}
	return networks, rows.Err()
}

func (r *IPAMRepository) UpdateNetwork(ctx context.Context, network *domain.Network) error {
	query := `UPDATE networks SET name = $1, tenant_id = $2, external = $3, network_view = $4 WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, network.Name, network.TenantID, network.External, network.NetworkView, network.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update network")
	}
	return expectRow(result, "network "+network.ID)
}

func (r *IPAMRepository) SetNetworkView(ctx context.Context, networkID, view string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE networks SET network_view = $1 WHERE id = $2`, view, networkID)
	if err != nil {
		return errors.Wrap(err, "failed to set network view")
	}
	return expectRow(result, "network "+networkID)
}

func (r *IPAMRepository) DeleteNetwork(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM network_servers WHERE network_id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete network servers")
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM networks WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete network")
	}
	if err := expectRow(result, "network "+id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (r *IPAMRepository) CreateSubnet(ctx context.Context, subnet *domain.Subnet) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var networkID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM networks WHERE id = $1`, subnet.NetworkID).Scan(&networkID)
	if err != nil {
		if err == sql.ErrNoRows {
			return errors.Wrapf(domain.ErrNotFound, "network %s", subnet.NetworkID)
		}
		return errors.Wrap(err, "failed to get network")
	}

	query := `
		INSERT INTO subnets (id, network_id, name, tenant_id, cidr, gateway_ip, allocation_pools, dns_nameservers, network_view)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.ExecContext(ctx, query, subnet.ID, subnet.NetworkID, subnet.Name, subnet.TenantID, subnet.CIDR,
		subnet.GatewayIP, encodePools(subnet.AllocationPools), strings.Join(subnet.DNSNameservers, ","), subnet.NetworkView)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errors.Wrapf(domain.ErrConflict, "subnet %s already exists", subnet.ID)
		}
		return errors.Wrap(err, "failed to create subnet")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

const subnetColumns = `id, network_id, name, tenant_id, cidr, gateway_ip, allocation_pools, dns_nameservers, network_view`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubnet(row scanner) (*domain.Subnet, error) {
	var (
		subnet      domain.Subnet
		pools       string
		nameservers string
	)
	err := row.Scan(&subnet.ID, &subnet.NetworkID, &subnet.Name, &subnet.TenantID, &subnet.CIDR,
		&subnet.GatewayIP, &pools, &nameservers, &subnet.NetworkView)
	if err != nil {
		return nil, err
	}
	subnet.AllocationPools = decodePools(pools)
	subnet.DNSNameservers = splitList(nameservers)
	return &subnet, nil
}

func (r *IPAMRepository) GetSubnet(ctx context.Context, id string) (*domain.Subnet, error) {
	subnet, err := scanSubnet(r.db.QueryRowContext(ctx, `SELECT `+subnetColumns+` FROM subnets WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get subnet")
	}
	return subnet, nil
}

func (r *IPAMRepository) UpdateSubnet(ctx context.Context, subnet *domain.Subnet) error {
	query := `UPDATE subnets SET name = $1, gateway_ip = $2, allocation_pools = $3, dns_nameservers = $4 WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, subnet.Name, subnet.GatewayIP,
		encodePools(subnet.AllocationPools), strings.Join(subnet.DNSNameservers, ","), subnet.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update subnet")
	}
	return expectRow(result, "subnet "+subnet.ID)
}

func (r *IPAMRepository) ListSubnets(ctx context.Context, networkID string) ([]*domain.Subnet, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+subnetColumns+` FROM subnets WHERE network_id = $1 ORDER BY id`, networkID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list subnets")
	}
	defer rows.Close()

	var subnets []*domain.Subnet
	for rows.Next() {
		subnet, err := scanSubnet(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan subnet row")
		}
		subnets = append(subnets, subnet)
	}
	return subnets, rows.Err()
}

func (r *IPAMRepository) DeleteSubnet(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ip_allocations WHERE subnet_id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete subnet allocations")
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM subnets WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete subnet")
	}
	if err := expectRow(result, "subnet "+id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (r *IPAMRepository) CountSubnetsInView(ctx context.Context, view, excludeSubnetID string) (int, error) {
	query := `SELECT COUNT(*) FROM subnets WHERE network_view = $1 AND id <> $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, view, excludeSubnetID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count subnets")
	}
	return count, nil
}

func (r *IPAMRepository) RecordAllocation(ctx context.Context, alloc *domain.IPAllocation) error {
	query := `
		INSERT INTO ip_allocations (subnet_id, address, hostname, mac_address, port_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, alloc.SubnetID, alloc.Address, alloc.Hostname, alloc.MACAddress, alloc.PortID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errors.Wrapf(domain.ErrConflict, "IP address %s is already allocated", alloc.Address)
		}
		return errors.Wrap(err, "failed to record allocation")
	}
	return nil
}

func (r *IPAMRepository) DeleteAllocation(ctx context.Context, subnetID, address string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ip_allocations WHERE subnet_id = $1 AND address = $2`, subnetID, address)
	if err != nil {
		return errors.Wrap(err, "failed to delete allocation")
	}
	return expectRow(result, "IP address "+address)
}

func (r *IPAMRepository) ListAllocations(ctx context.Context, subnetID string) ([]*domain.IPAllocation, error) {
	query := `SELECT subnet_id, address, hostname, mac_address, port_id FROM ip_allocations WHERE subnet_id = $1 ORDER BY address`
	rows, err := r.db.QueryContext(ctx, query, subnetID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list allocations")
	}
	defer rows.Close()

	var allocs []*domain.IPAllocation
	for rows.Next() {
		var alloc domain.IPAllocation
		if err := rows.Scan(&alloc.SubnetID, &alloc.Address, &alloc.Hostname, &alloc.MACAddress, &alloc.PortID); err != nil {
			return nil, errors.Wrap(err, "failed to scan allocation row")
		}
		allocs = append(allocs, &alloc)
	}
	return allocs, rows.Err()
}

func (r *IPAMRepository) SetNetworkServers(ctx context.Context, networkID string, memberType domain.MemberType, servers []string) error {
	query := `
		INSERT INTO network_servers (network_id, member_type, servers)
		VALUES ($1, $2, $3)
		ON CONFLICT (network_id, member_type) DO UPDATE SET servers = excluded.servers
	`
	if _, err := r.db.ExecContext(ctx, query, networkID, string(memberType), strings.Join(servers, ",")); err != nil {
		return errors.Wrap(err, "failed to set network servers")
	}
	return nil
}

func (r *IPAMRepository) NetworkServers(ctx context.Context, networkID string, memberType domain.MemberType) ([]string, error) {
	var servers string
	err := r.db.QueryRowContext(ctx, `SELECT servers FROM network_servers WHERE network_id = $1 AND member_type = $2`,
		networkID, string(memberType)).Scan(&servers)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get network servers")
	}
	return splitList(servers), nil
}

func (r *IPAMRepository) DeleteNetworkServers(ctx context.Context, networkID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM network_servers WHERE network_id = $1`, networkID); err != nil {
		return errors.Wrap(err, "failed to delete network servers")
	}
	return nil
}

func expectRow(result sql.Result, object string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return errors.Wrap(domain.ErrNotFound, object)
	}
	return nil
}

// Pools are stored as first-last pairs separated by commas.
func encodePools(pools []domain.Range) string {
	parts := make([]string, 0, len(pools))
	for _, p := range pools {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ",")
}

func decodePools(value string) []domain.Range {
	var pools []domain.Range
	for _, part := range splitList(value) {
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			continue
		}
		pools = append(pools, domain.Range{FirstIP: bounds[0], LastIP: bounds[1]})
	}
	return pools
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}
