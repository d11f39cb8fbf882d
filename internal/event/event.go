// Package event defines the typed, channel-carried event variant that
// replaces the original implementation's object-signal dispatch
// (spec.md §9).
package event

import "github.com/ict-serrano/telemetry-fabric/internal/model"

// Action discriminates an Event. Unknown actions must be rejected at
// the ingress (the HTTP handlers in internal/agent/access), never
// forwarded into the channel.
type Action string

const (
	ActionRegistration              Action = "registration"
	ActionDeregistration             Action = "deregistration"
	ActionInventory                  Action = "inventory"
	ActionMonitor                    Action = "monitor"
	ActionDeploymentPost             Action = "deployment/post"
	ActionDeploymentDelete           Action = "deployment/delete"
	ActionDeploymentSpecificMetrics  Action = "deployment_specific_metrics/post"
	ActionConfiguration              Action = "configuration"
)

// Event is the single type carried on the controller's channel. Exactly
// the fields relevant to Action are populated; the rest are zero.
type Event struct {
	Action Action

	// Registration / Deregistration
	ProbeUUID   string
	ClusterUUID string
	URL         string
	ProbeType   model.ProbeType

	// Inventory / Monitor
	Inventory *model.InventoryEnvelope
	Monitor   *model.MonitorEnvelope

	// Deployment
	DeploymentUUID string
	K8sDeployments []string

	// DeploymentSpecificMetrics
	ServiceID string
	Metrics   map[string]any

	// Configuration
	ConfigKey   string
	ConfigValue any
}
