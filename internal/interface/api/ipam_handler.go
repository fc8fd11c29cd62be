package api

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/log"
	"github.com/zinrai/ddi-ipam-go/internal/usecase"
)

type IPAMHandler struct {
	useCase *usecase.IPAMUseCase
}

func NewIPAMHandler(useCase *usecase.IPAMUseCase) *IPAMHandler {
	return &IPAMHandler{useCase: useCase}
}

func (h *IPAMHandler) HandleNetwork(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createNetwork(w, r)
	case http.MethodGet:
		h.listNetworks(w, r)
	case http.MethodPut:
		h.updateNetwork(w, r)
	case http.MethodDelete:
		h.deleteNetwork(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *IPAMHandler) HandleSubnet(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createSubnet(w, r)
	case http.MethodGet:
		h.listSubnets(w, r)
	case http.MethodPut:
		h.updateSubnet(w, r)
	case http.MethodDelete:
		h.deleteSubnet(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *IPAMHandler) HandleIP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.allocateIP(w, r)
	case http.MethodDelete:
		h.releaseIP(w, r)
	case http.MethodGet:
		h.listIPs(w, r)
	case http.MethodPut:
		h.updateIPAttributes(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleNames binds (POST) or unbinds (DELETE) the DNS names of a port's
// addresses.
func (h *IPAMHandler) HandleNames(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost, http.MethodDelete:
		h.names(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *IPAMHandler) HandleServers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	networkID := r.URL.Query().Get("network_id")
	if networkID == "" {
		http.Error(w, "Invalid network ID", http.StatusBadRequest)
		return
	}
	dhcp, dns, err := h.useCase.NetworkServers(r.Context(), networkID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		DHCP []string `json:"dhcp_servers"`
		DNS  []string `json:"dns_servers"`
	}{dhcp, dns})
}

// HandleRelay puts a relay address in front of the member nameservers of
// a subnet.
func (h *IPAMHandler) HandleRelay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request struct {
		SubnetID string `json:"subnet_id"`
		RelayIP  string `json:"relay_ip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.useCase.SetRelayNameserver(r.Context(), request.SubnetID, request.RelayIP); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *IPAMHandler) createNetwork(w http.ResponseWriter, r *http.Request) {
	var network domain.Network
	if err := json.NewDecoder(r.Body).Decode(&network); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.useCase.CreateNetwork(r.Context(), &network); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, network)
}

func (h *IPAMHandler) listNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := h.useCase.ListNetworks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, networks)
}

func (h *IPAMHandler) updateNetwork(w http.ResponseWriter, r *http.Request) {
	var network domain.Network
	if err := json.NewDecoder(r.Body).Decode(&network); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.useCase.UpdateNetwork(r.Context(), &network); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *IPAMHandler) deleteNetwork(w http.ResponseWriter, r *http.Request) {
	networkID := r.URL.Query().Get("network_id")
	if networkID == "" {
		http.Error(w, "Invalid network ID", http.StatusBadRequest)
		return
	}
	if err := h.useCase.DeleteNetwork(r.Context(), networkID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *IPAMHandler) createSubnet(w http.ResponseWriter, r *http.Request) {
	var subnet domain.Subnet
	if err := json.NewDecoder(r.Body).Decode(&subnet); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.useCase.CreateSubnet(r.Context(), &subnet); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, subnet)
}

func (h *IPAMHandler) listSubnets(w http.ResponseWriter, r *http.Request) {
	networkID := r.URL.Query().Get("network_id")
	if networkID == "" {
		http.Error(w, "Invalid network ID", http.StatusBadRequest)
		return
	}
	subnets, err := h.useCase.ListSubnets(r.Context(), networkID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subnets)
}

func (h *IPAMHandler) updateSubnet(w http.ResponseWriter, r *http.Request) {
	var subnet domain.Subnet
	if err := json.NewDecoder(r.Body).Decode(&subnet); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.useCase.UpdateSubnet(r.Context(), &subnet); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *IPAMHandler) deleteSubnet(w http.ResponseWriter, r *http.Request) {
	subnetID := r.URL.Query().Get("subnet_id")
	if subnetID == "" {
		http.Error(w, "Invalid subnet ID", http.StatusBadRequest)
		return
	}
	if err := h.useCase.DeleteSubnet(r.Context(), subnetID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type portRequest struct {
	SubnetID     string            `json:"subnet_id"`
	PortID       string            `json:"port_id"`
	TenantID     string            `json:"tenant_id"`
	MACAddress   string            `json:"mac"`
	DeviceID     string            `json:"device_id"`
	DeviceOwner  string            `json:"device_owner"`
	InstanceName string            `json:"instance_name"`
	Hostname     string            `json:"hostname"`
	RequestedIP  string            `json:"ip"`
	Addresses    []string          `json:"addresses"`
	Attrs        map[string]string `json:"attrs"`
}

func (p *portRequest) port() *domain.Port {
	return &domain.Port{
		ID:           p.PortID,
		TenantID:     p.TenantID,
		MACAddress:   p.MACAddress,
		DeviceID:     p.DeviceID,
		DeviceOwner:  p.DeviceOwner,
		InstanceName: p.InstanceName,
	}
}

func (h *IPAMHandler) allocateIP(w http.ResponseWriter, r *http.Request) {
	var request portRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ip, err := h.useCase.AllocateIP(r.Context(), usecase.AllocateRequest{
		SubnetID: request.SubnetID,
		Port:     request.port(),
		Hostname: request.Hostname,
		Address:  request.RequestedIP,
		ExtAttrs: request.Attrs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ip)
}

func (h *IPAMHandler) releaseIP(w http.ResponseWriter, r *http.Request) {
	subnetID := r.URL.Query().Get("subnet_id")
	address := r.URL.Query().Get("ip")
	if subnetID == "" || address == "" {
		http.Error(w, "Invalid subnet ID or IP", http.StatusBadRequest)
		return
	}
	if err := h.useCase.DeallocateIP(r.Context(), subnetID, address); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *IPAMHandler) listIPs(w http.ResponseWriter, r *http.Request) {
	subnetID := r.URL.Query().Get("subnet_id")
	if subnetID == "" {
		http.Error(w, "Invalid subnet ID", http.StatusBadRequest)
		return
	}
	ips, err := h.useCase.ListIPs(r.Context(), subnetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ips)
}

func (h *IPAMHandler) updateIPAttributes(w http.ResponseWriter, r *http.Request) {
	var request portRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.useCase.UpdateAttributes(r.Context(), request.SubnetID, request.port(), request.Addresses); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *IPAMHandler) names(w http.ResponseWriter, r *http.Request) {
	var request portRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fn := h.useCase.BindNames
	if r.Method == http.MethodDelete {
		fn = h.useCase.UnbindNames
	}
	if err := fn(r.Context(), request.SubnetID, request.port(), request.Addresses); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	entry := log.G(r.Context()).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	http.Error(w, err.Error(), status)
}

// statusOf maps the orchestrator errors to HTTP status codes.
func statusOf(err error) int {
	var (
		exhausted   *domain.AllocationExhaustedError
		parse       *domain.AddressParseError
		pattern     *domain.InvalidPatternError
		noConfig    *domain.NoConfigForSubnetError
		notAllowed  *domain.OperationNotAllowedError
		noMember    *domain.NoMemberAvailableError
		timeout     *domain.TimeoutError
		unavailable *domain.NoAddressAvailableError
		config      *domain.ConfigError
	)
	switch {
	case errors.As(err, &exhausted), errors.As(err, &unavailable), errors.As(err, &noConfig), errors.As(err, &noMember):
		return http.StatusConflict
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case domain.IsInfrastructure(err):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation), errors.As(err, &parse), errors.As(err, &pattern), errors.As(err, &config):
		return http.StatusBadRequest
	case errors.As(err, &notAllowed):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
