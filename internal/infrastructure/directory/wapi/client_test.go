package wapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zinrai/ddi-ipam-go/internal/config"
	"github.com/zinrai/ddi-ipam-go/internal/domain"
)

type request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]interface{}
}

// fakeAppliance answers with the handler registered for "METHOD path" and
// records every request.
type fakeAppliance struct {
	t        *testing.T
	routes   map[string]http.HandlerFunc
	requests []request
}

func newFakeAppliance(t *testing.T) (*fakeAppliance, *Client) {
	f := &fakeAppliance{t: t, routes: make(map[string]http.HandlerFunc)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	c := New(config.DirectoryConfig{
		URL:      srv.URL + "/wapi/v2.3",
		Username: "admin",
		Password: "infoblox",
		Timeout:  time.Second,
	}, true)
	return f, c
}

func (f *fakeAppliance) handle(method, path string, h http.HandlerFunc) {
	f.routes[method+" "+path] = h
}

func (f *fakeAppliance) reply(method, path string, status int, body string) {
	f.handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func (f *fakeAppliance) serve(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "admin" || pass != "infoblox" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/wapi/v2.3/")
	req := request{Method: r.Method, Path: path, Query: map[string]string{}}
	for k := range r.URL.Query() {
		req.Query[k] = r.URL.Query().Get(k)
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &req.Body)
	}
	f.requests = append(f.requests, req)

	h, ok := f.routes[r.Method+" "+path]
	if !ok {
		f.t.Errorf("unexpected request %s %s", r.Method, path)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h(w, r)
}

func (f *fakeAppliance) last() request {
	require.NotEmpty(f.t, f.requests)
	return f.requests[len(f.requests)-1]
}

const exhaustedBody = `{
	"Error": "AdmConDataError: None (IBDataConflictError: IB.Data.Conflict:Cannot find 1 available IP address(es) in this network)",
	"code": "Client.Ibap.Data.Conflict",
	"text": "Cannot find 1 available IP address(es) in this network"
}`

func TestCreateHostRecordFromRange(t *testing.T) {
	ctx := context.Background()
	req := domain.RangeRequest{
		NetworkView: "tenant-a",
		DNSView:     "default.tenant-a",
		Zone:        "global.com",
		Hostname:    "port-1",
		MAC:         "aa:bb:cc:dd:ee:ff",
		FirstIP:     "10.0.0.2",
		LastIP:      "10.0.0.10",
		ExtAttrs:    domain.ExtAttrs{"Port ID": "port-1"},
	}

	t.Run("Next available address", func(t *testing.T) {
		f, c := newFakeAppliance(t)
		f.reply(http.MethodPost, "record:host", http.StatusCreated, `{
			"_ref": "record:host/ZG5z:port-1.global.com/default.tenant-a",
			"name": "port-1.global.com",
			"view": "default.tenant-a",
			"ipv4addrs": [{"ipv4addr": "10.0.0.2", "mac": "aa:bb:cc:dd:ee:ff", "configure_for_dhcp": true}]
		}`)

		record, err := c.CreateHostRecordFromRange(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2", record.LastAddress())
		assert.Equal(t, "port-1.global.com", record.Name)

		sent := f.last()
		assert.Equal(t, hostFields, sent.Query["_return_fields"])
		assert.Equal(t, "port-1.global.com", sent.Body["name"])
		addrs := sent.Body["ipv4addrs"].([]interface{})
		addr := addrs[0].(map[string]interface{})
		assert.Equal(t, "func:nextavailableip:10.0.0.2-10.0.0.10,tenant-a", addr["ipv4addr"])
		assert.Equal(t, true, addr["configure_for_dhcp"])
		assert.Equal(t, map[string]interface{}{"value": "port-1"}, sent.Body["extattrs"].(map[string]interface{})["Port ID"])
	})

	t.Run("Exhausted range", func(t *testing.T) {
		f, c := newFakeAppliance(t)
		f.reply(http.MethodPost, "record:host", http.StatusBadRequest, exhaustedBody)

		_, err := c.CreateHostRecordFromRange(ctx, req)
		require.True(t, domain.IsNoAddressAvailable(err), "got %v", err)
		var exhausted *domain.NoAddressAvailableError
		require.True(t, errors.As(err, &exhausted))
		assert.Equal(t, "10.0.0.2", exhausted.FirstIP)
		assert.Equal(t, "tenant-a", exhausted.NetworkView)
	})

	t.Run("Other conflicts are not exhaustion", func(t *testing.T) {
		f, c := newFakeAppliance(t)
		f.reply(http.MethodPost, "record:host", http.StatusBadRequest,
			`{"Error": "AdmConDataError", "code": "Client.Ibap.Data.Conflict", "text": "The record 'port-1.global.com' already exists."}`)

		_, err := c.CreateHostRecordFromRange(ctx, req)
		assert.False(t, domain.IsNoAddressAvailable(err))
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})
}

func TestErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("Bad credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()
		c := New(config.DirectoryConfig{URL: srv.URL, Username: "admin", Password: "wrong"}, false)

		_, err := c.NetworkViewExists(ctx, "default")
		var auth *domain.AuthenticationError
		assert.True(t, errors.As(err, &auth), "got %v", err)
	})

	t.Run("Not found", func(t *testing.T) {
		f, c := newFakeAppliance(t)
		f.reply(http.MethodPut, "network/ZG5z:10.0.0.0/24/tenant-a", http.StatusNotFound,
			`{"Error": "AdmConProtoError: Reference not found", "code": "Client.Ibap.Proto", "text": "Reference not found"}`)

		err := c.UpdateNetworkOptions(ctx, &domain.BackendNetwork{Ref: "network/ZG5z:10.0.0.0/24/tenant-a"}, nil)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		var derr *domain.DirectoryError
		require.True(t, errors.As(err, &derr))
		assert.Equal(t, http.StatusNotFound, derr.Code)
		assert.Equal(t, "Reference not found", derr.Body)
	})

	t.Run("Connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c := New(config.DirectoryConfig{URL: url, Username: "admin", Password: "infoblox"}, false)

		_, err := c.HasNetworks(ctx, "default")
		var conn *domain.ConnectionError
		assert.True(t, errors.As(err, &conn), "got %v", err)
		assert.True(t, domain.IsInfrastructure(err))
	})

	t.Run("Timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()
		c := New(config.DirectoryConfig{URL: srv.URL, Username: "admin", Password: "infoblox", Timeout: 20 * time.Millisecond}, false)

		_, err := c.HasNetworks(ctx, "default")
		var timeout *domain.TimeoutError
		assert.True(t, errors.As(err, &timeout), "got %v", err)
	})
}

func TestGetNetwork(t *testing.T) {
	ctx := context.Background()
	f, c := newFakeAppliance(t)
	f.reply(http.MethodGet, "network", http.StatusOK, `[{
		"_ref": "network/ZG5z:10.0.0.0/24/tenant-a",
		"network": "10.0.0.0/24",
		"network_view": "tenant-a",
		"members": [{"_struct": "dhcpmember", "name": "nios-1.example.com", "ipv4addr": "192.168.1.10"}],
		"options": [{"name": "domain-name-servers", "num": 6, "value": "192.168.1.10,8.8.8.8", "use_option": true}],
		"extattrs": {"Subnet ID": {"value": "sub-1"}}
	}]`)

	backend, err := c.GetNetwork(ctx, "tenant-a", "10.0.0.0/24")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.10"}, backend.MemberIPs)
	assert.Equal(t, []string{"192.168.1.10", "8.8.8.8"}, backend.DNSNameservers())
	assert.Equal(t, "sub-1", backend.ExtAttrs["Subnet ID"])

	sent := f.last()
	assert.Equal(t, "tenant-a", sent.Query["network_view"])
	assert.Equal(t, "10.0.0.0/24", sent.Query["network"])

	f.reply(http.MethodGet, "network", http.StatusOK, `[]`)
	_, err = c.GetNetwork(ctx, "tenant-a", "10.0.1.0/24")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCreateRange(t *testing.T) {
	ctx := context.Background()
	f, c := newFakeAppliance(t)
	f.reply(http.MethodPost, "range", http.StatusCreated, `"range/ZG5z:10.0.0.2/10.0.0.10/tenant-a"`)

	members := []domain.Member{{Name: "nios-1.example.com", IPv4Addr: "192.168.1.10"}}
	require.NoError(t, c.CreateRange(ctx, "tenant-a", "10.0.0.0/24", "10.0.0.2", "10.0.0.10", members, true))

	sent := f.last()
	assert.Equal(t, "10.0.0.2", sent.Body["start_addr"])
	assert.Equal(t, "10.0.0.10", sent.Body["end_addr"])
	assert.Equal(t, true, sent.Body["disable"])
	assert.Equal(t, "nios-1.example.com", sent.Body["member"].(map[string]interface{})["name"])
}

func TestDeleteNetworkView(t *testing.T) {
	ctx := context.Background()
	f, c := newFakeAppliance(t)
	f.reply(http.MethodGet, "networkview", http.StatusOK, `[{"_ref": "networkview/ZG5z:tenant-a/false"}]`)
	f.reply(http.MethodDelete, "networkview/ZG5z:tenant-a/false", http.StatusOK, `"networkview/ZG5z:tenant-a/false"`)

	require.NoError(t, c.DeleteNetworkView(ctx, "tenant-a"))
	assert.Equal(t, http.MethodDelete, f.last().Method)

	err := c.DeleteNetworkView(ctx, "default")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestRestartServices(t *testing.T) {
	ctx := context.Background()
	f, c := newFakeAppliance(t)
	f.reply(http.MethodGet, "member", http.StatusOK, `[{"_ref": "member/b25l:nios-1.example.com"}]`)
	f.reply(http.MethodPost, "member/b25l:nios-1.example.com", http.StatusOK, `{}`)

	require.NoError(t, c.RestartServices(ctx, []domain.Member{{Name: "nios-1.example.com"}}))

	sent := f.last()
	assert.Equal(t, "restartservices", sent.Query["_function"])
	assert.Equal(t, "RESTART_IF_NEEDED", sent.Body["restart_option"])
}

func TestDeleteAssociatedObjects(t *testing.T) {
	ctx := context.Background()
	f, c := newFakeAppliance(t)
	f.reply(http.MethodGet, "ipv4address", http.StatusOK, `[{"objects": [
		"fixedaddress/ZG5z:10.0.0.5/tenant-a",
		"record:a/ZG5z:host.global.com/default.tenant-a",
		"record:ptr/ZG5z:5.0.0.10.in-addr.arpa/default.tenant-a"
	]}]`)
	f.reply(http.MethodDelete, "record:a/ZG5z:host.global.com/default.tenant-a", http.StatusOK, `""`)

	require.NoError(t, c.DeleteAssociatedObjects(ctx, "tenant-a", "10.0.0.5", []string{"record:a"}))

	var deleted []string
	for _, r := range f.requests {
		if r.Method == http.MethodDelete {
			deleted = append(deleted, r.Path)
		}
	}
	assert.Equal(t, []string{"record:a/ZG5z:host.global.com/default.tenant-a"}, deleted)
}
