package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/infrastructure/db"
)

func newRepo(t *testing.T) (*IPAMRepository, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	return NewIPAMRepository(db.NewDB(mockDB)), mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
		mockDB.Close()
	}
}

func TestCreateNetwork(t *testing.T) {
	ctx := context.Background()
	repo, mock, done := newRepo(t)
	defer done()

	network := &domain.Network{ID: "net-1", Name: "private", TenantID: "tenant-a"}

	t.Run("Create network successfully", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO networks").
			WithArgs("net-1", "private", "tenant-a", false, "").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.CreateNetwork(ctx, network); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Duplicate network", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO networks").
			WithArgs("net-1", "private", "tenant-a", false, "").
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.CreateNetwork(ctx, network)
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected a conflict, got %v", err)
		}
	})

	t.Run("Database error when creating network", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO networks").
			WillReturnError(fmt.Errorf("database error"))

		err := repo.CreateNetwork(ctx, network)
		if err == nil || errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected a plain error, got %v", err)
		}
	})
}

func TestGetNetwork(t *testing.T) {
	ctx := context.Background()
	repo, mock, done := newRepo(t)
	defer done()

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, tenant_id, external, network_view FROM networks").
			WithArgs("net-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "tenant_id", "external", "network_view"}).
				AddRow("net-1", "private", "tenant-a", false, "tenant-a"))

		network, err := repo.GetNetwork(ctx, "net-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if network.NetworkView != "tenant-a" {
			t.Errorf("expected network view tenant-a, got %s", network.NetworkView)
		}
	})

	t.Run("Missing network", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, tenant_id, external, network_view FROM networks").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		network, err := repo.GetNetwork(ctx, "missing")
		if err != nil || network != nil {
			t.Errorf("expected nil, nil, got %v, %v", network, err)
		}
	})
}

func TestCreateSubnet(t *testing.T) {
	ctx := context.Background()
	repo, mock, done := newRepo(t)
	defer done()

	subnet := &domain.Subnet{
		ID:        "sub-1",
		NetworkID: "net-1",
		TenantID:  "tenant-a",
		CIDR:      "10.0.0.0/16",
		AllocationPools: []domain.Range{
			{FirstIP: "10.0.0.2", LastIP: "10.0.0.10"},
			{FirstIP: "10.0.1.2", LastIP: "10.0.1.10"},
		},
		DNSNameservers: []string{"8.8.8.8", "9.9.9.9"},
		NetworkView:    "tenant-a",
	}

	t.Run("Missing network", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM networks").
			WithArgs("net-1").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := repo.CreateSubnet(ctx, subnet)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("Pools and nameservers are encoded", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM networks").
			WithArgs("net-1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("net-1"))
		mock.ExpectExec("INSERT INTO subnets").
			WithArgs("sub-1", "net-1", "", "tenant-a", "10.0.0.0/16", "",
				"10.0.0.2-10.0.0.10,10.0.1.2-10.0.1.10", "8.8.8.8,9.9.9.9", "tenant-a").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := repo.CreateSubnet(ctx, subnet); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestGetSubnet(t *testing.T) {
	ctx := context.Background()
	repo, mock, done := newRepo(t)
	defer done()

	mock.ExpectQuery("SELECT id, network_id, name, tenant_id, cidr, gateway_ip, allocation_pools, dns_nameservers, network_view FROM subnets").
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "network_id", "name", "tenant_id", "cidr", "gateway_ip", "allocation_pools", "dns_nameservers", "network_view"}).
			AddRow("sub-1", "net-1", "web", "tenant-a", "10.0.0.0/16", "10.0.0.1", "10.0.0.2-10.0.0.10,10.0.1.2-10.0.1.10", "", "tenant-a"))

	subnet, err := repo.GetSubnet(ctx, "sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subnet.AllocationPools) != 2 || subnet.AllocationPools[1].FirstIP != "10.0.1.2" {
		t.Errorf("unexpected pools %v", subnet.AllocationPools)
	}
	if subnet.DNSNameservers != nil {
		t.Errorf("expected no nameservers, got %v", subnet.DNSNameservers)
	}
	if subnet.NetworkView != "tenant-a" {
		t.Errorf("expected view tenant-a, got %q", subnet.NetworkView)
	}
}

func TestCountSubnetsInView(t *testing.T) {
	ctx := context.Background()
	repo, mock, done := newRepo(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM subnets WHERE network_view = $1 AND id <> $2")).
		WithArgs("tenant-a", "sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountSubnetsInView(ctx, "tenant-a", "sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 subnets, got %d", count)
	}
}

func TestAllocations(t *testing.T) {
	ctx := context.Background()
	repo, mock, done := newRepo(t)
	defer done()

	alloc := &domain.IPAllocation{SubnetID: "sub-1", Address: "10.0.0.2", Hostname: "port-1", PortID: "port-1"}

	t.Run("Record allocation", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO ip_allocations").
			WithArgs("sub-1", "10.0.0.2", "port-1", "", "port-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.RecordAllocation(ctx, alloc); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Address already allocated", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO ip_allocations").
			WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey})

		err := repo.RecordAllocation(ctx, alloc)
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected a conflict, got %v", err)
		}
	})

	t.Run("Delete missing allocation", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM ip_allocations").
			WithArgs("sub-1", "10.0.0.9").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.DeleteAllocation(ctx, "sub-1", "10.0.0.9")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestNetworkServers(t *testing.T) {
	ctx := context.Background()
	repo, mock, done := newRepo(t)
	defer done()

	mock.ExpectExec("INSERT INTO network_servers").
		WithArgs("net-1", "dhcp", "192.168.1.10,192.168.1.11").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.SetNetworkServers(ctx, "net-1", domain.DHCPMember, []string{"192.168.1.10", "192.168.1.11"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectQuery("SELECT servers FROM network_servers").
		WithArgs("net-1", "dns").
		WillReturnError(sql.ErrNoRows)
	servers, err := repo.NetworkServers(ctx, "net-1", domain.DNSMember)
	if err != nil || servers != nil {
		t.Errorf("expected no servers, got %v, %v", servers, err)
	}
}

func TestInsertExclusiveMapping(t *testing.T) {
	ctx := context.Background()
	repo, mock, done := newRepo(t)
	defer done()

	mapping := domain.MemberMapping{MapID: "tenant-a", MemberName: "nios-1.example.com", Type: domain.DHCPMember}

	t.Run("Scope reserved", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO member_mappings").
			WithArgs("tenant-a", "nios-1.example.com", "dhcp").
			WillReturnResult(sqlmock.NewResult(0, 1))

		inserted, err := repo.InsertExclusiveMapping(ctx, mapping)
		if err != nil || !inserted {
			t.Errorf("expected insertion, got %v, %v", inserted, err)
		}
	})

	t.Run("Scope already mapped by another writer", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO member_mappings").
			WithArgs("tenant-a", "nios-1.example.com", "dhcp").
			WillReturnResult(sqlmock.NewResult(0, 0))

		inserted, err := repo.InsertExclusiveMapping(ctx, mapping)
		if err != nil || inserted {
			t.Errorf("expected no insertion, got %v, %v", inserted, err)
		}
	})

	t.Run("Member held by another scope", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO member_mappings").
			WithArgs("tenant-a", "nios-1.example.com", "dhcp").
			WillReturnError(&pq.Error{Code: "23505"})

		_, err := repo.InsertExclusiveMapping(ctx, mapping)
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected a conflict, got %v", err)
		}
	})

	t.Run("Scope mapped by a concurrent transaction", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO member_mappings").
			WithArgs("tenant-a", "nios-1.example.com", "dhcp").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "member_mappings_exclusive_scope"})

		inserted, err := repo.InsertExclusiveMapping(ctx, mapping)
		if inserted || !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected a conflict, got %v, %v", inserted, err)
		}
	})
}

func TestFindMappings(t *testing.T) {
	ctx := context.Background()
	repo, mock, done := newRepo(t)
	defer done()

	mock.ExpectQuery("SELECT member_name FROM member_mappings").
		WithArgs("tenant-a", "dns").
		WillReturnRows(sqlmock.NewRows([]string{"member_name"}).AddRow("nios-1.example.com").AddRow("nios-2.example.com"))

	names, err := repo.FindMappings(ctx, "tenant-a", domain.DNSMember)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "nios-1.example.com" {
		t.Errorf("unexpected members %v", names)
	}

	mock.ExpectQuery("SELECT DISTINCT member_name FROM member_mappings").
		WithArgs("dhcp").
		WillReturnRows(sqlmock.NewRows([]string{"member_name"}))

	used, err := repo.UsedMembers(ctx, domain.DHCPMember)
	if err != nil || len(used) != 0 {
		t.Errorf("expected no used members, got %v, %v", used, err)
	}
}
