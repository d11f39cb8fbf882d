// Package hpc implements the HPC probe backend: a thin forwarder over
// a site gateway's /services and /infrastructure/{name}/telemetry
// endpoints, grounded on
// _examples/original_source/Probes/hpc/hpcProbe.py.
package hpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ict-serrano/telemetry-fabric/internal/config"
	"github.com/ict-serrano/telemetry-fabric/internal/model"
)

type Backend struct {
	uuid       string
	gatewayURL string
	infraName  string
	httpClient *http.Client
}

func New(uuid string, cfg config.ProbeConfig) *Backend {
	return &Backend{
		uuid:       uuid,
		gatewayURL: cfg.HPCGatewayURL,
		infraName:  cfg.ClusterUUID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *Backend) UUID() string          { return b.uuid }
func (b *Backend) Type() model.ProbeType { return model.ProbeTypeHPC }

func (b *Backend) Inventory(r *http.Request) (*model.InventoryEnvelope, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, b.gatewayURL+"/services", nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hpc gateway /services: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("hpc gateway /services status %d", resp.StatusCode)
	}

	var inv model.HPCInventory
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return nil, fmt.Errorf("decode hpc inventory: %w", err)
	}
	if inv.InfrastructureName == "" {
		inv.InfrastructureName = b.infraName
	}

	return &model.InventoryEnvelope{
		UUID: b.uuid, Type: model.ProbeTypeHPC,
		HPCInventoryData: &inv,
	}, nil
}

func (b *Backend) Monitor(r *http.Request, target string) (*model.MonitorEnvelope, error) {
	url := fmt.Sprintf("%s/infrastructure/%s/telemetry", b.gatewayURL, b.infraName)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hpc gateway telemetry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("hpc gateway telemetry status %d", resp.StatusCode)
	}

	var mon model.HPCMonitoring
	if err := json.NewDecoder(resp.Body).Decode(&mon); err != nil {
		return nil, fmt.Errorf("decode hpc telemetry: %w", err)
	}

	return &model.MonitorEnvelope{
		UUID: b.uuid, Type: model.ProbeTypeHPC,
		HPCMonitoringData: &mon,
	}, nil
}
