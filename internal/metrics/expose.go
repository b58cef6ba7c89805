package metrics

import (
	"bytes"
	"fmt"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// TextExposition renders all instruments in the Prometheus text scrape format.
func (r *Registry) TextExposition() (string, error) {
	families, err := r.Gather()
	if err != nil {
		return "", fmt.Errorf("gathering metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return buf.String(), nil
}

// Sample is one labeled observation in the JSON dump.
type Sample struct {
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
	// Histogram-only fields
	Count   uint64             `json:"count,omitempty"`
	Sum     float64            `json:"sum,omitempty"`
	Buckets map[string]uint64  `json:"buckets,omitempty"`
}

// FamilyDump is the JSON rendering of one metric family.
type FamilyDump struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Help    string   `json:"help,omitempty"`
	Samples []Sample `json:"samples"`
}

// JSONDump renders all instruments as a structure suitable for the
// system://status resource.
func (r *Registry) JSONDump() ([]FamilyDump, error) {
	families, err := r.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	out := make([]FamilyDump, 0, len(families))
	for _, mf := range families {
		fd := FamilyDump{
			Name: mf.GetName(),
			Kind: kindName(mf.GetType()),
			Help: mf.GetHelp(),
		}
		for _, m := range mf.GetMetric() {
			s := Sample{}
			if labels := m.GetLabel(); len(labels) > 0 {
				s.Labels = make(map[string]string, len(labels))
				for _, lp := range labels {
					s.Labels[lp.GetName()] = lp.GetValue()
				}
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				s.Value = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				s.Value = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				s.Count = h.GetSampleCount()
				s.Sum = h.GetSampleSum()
				s.Buckets = make(map[string]uint64, len(h.GetBucket()))
				for _, b := range h.GetBucket() {
					s.Buckets[fmt.Sprintf("%g", b.GetUpperBound())] = b.GetCumulativeCount()
				}
			default:
				s.Value = m.GetUntyped().GetValue()
			}
			fd.Samples = append(fd.Samples, s)
		}
		out = append(out, fd)
	}
	return out, nil
}

func kindName(t dto.MetricType) string {
	switch t {
	case dto.MetricType_COUNTER:
		return "counter"
	case dto.MetricType_GAUGE:
		return "gauge"
	case dto.MetricType_HISTOGRAM:
		return "histogram"
	case dto.MetricType_SUMMARY:
		return "summary"
	default:
		return "untyped"
	}
}

// FamilyValue returns the aggregate value of the named family: counters and
// gauges sum across label sets, histograms report their sample count. Used by
// the alert evaluator.
func (r *Registry) FamilyValue(name string) (float64, bool, error) {
	families, err := r.Gather()
	if err != nil {
		return 0, false, err
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				total += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				total += m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				total += float64(m.GetHistogram().GetSampleCount())
			default:
				total += m.GetUntyped().GetValue()
			}
		}
		return total, true, nil
	}
	return 0, false, nil
}
