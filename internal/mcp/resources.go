package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/security"
)

// Resource URIs the server exposes. Resources are read-only views; all of
// them require at least the readonly role.
const (
	ResourceDroneList    = "drones://list"
	ResourceSystemStatus = "system://status"
	ResourceSystemHealth = "system://health"
	ResourceMetrics      = "system://metrics"
)

// resourceDescriptor is one entry of resources/list.
type resourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

var resourceDescriptors = []resourceDescriptor{
	{ResourceDroneList, "Fleet", "Status of every drone known to the backend", "application/json"},
	{ResourceSystemStatus, "System status", "Server state, uptime, metric dump and active alerts", "application/json"},
	{ResourceSystemHealth, "System health", "Latest threat analysis summary", "application/json"},
	{ResourceMetrics, "Metrics", "Prometheus text exposition of all instruments", "text/plain"},
}

// resourceContent is the wire form of one read resource.
type resourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// readResource renders the named resource.
func (s *Server) readResource(ctx context.Context, uri string) (*resourceContent, error) {
	switch uri {
	case ResourceDroneList:
		drones, err := s.backend.ListDrones(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range drones {
			s.fleet.Record(d)
		}
		return jsonResource(uri, map[string]interface{}{"drones": drones})

	case ResourceSystemStatus:
		dump, err := s.metrics.JSONDump()
		if err != nil {
			return nil, fault.Wrap(fault.KindInternal, "dumping metrics", err)
		}
		return jsonResource(uri, map[string]interface{}{
			"state":          s.state.name(),
			"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
			"tool_calls":     s.stats.snapshot(),
			"metrics":        dump,
			"active_alerts":  s.alerts.ActiveAlerts(),
		})

	case ResourceSystemHealth:
		summary := s.threats.Latest()
		return jsonResource(uri, map[string]interface{}{
			"threat_summary":     summary,
			"audit_ring_entries": s.auditor.Ring().Len(),
		})

	case ResourceMetrics:
		text, err := s.metrics.TextExposition()
		if err != nil {
			return nil, fault.Wrap(fault.KindInternal, "rendering metrics", err)
		}
		return &resourceContent{URI: uri, MimeType: "text/plain", Text: text}, nil

	default:
		return nil, fault.Newf(fault.KindMethodNotFound, "unknown resource %q", uri)
	}
}

func jsonResource(uri string, payload interface{}) (*resourceContent, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "encoding resource", err)
	}
	return &resourceContent{URI: uri, MimeType: "application/json", Text: string(encoded)}, nil
}

// resourceMinRole is the role floor for all resource reads.
const resourceMinRole = security.RoleReadonly
