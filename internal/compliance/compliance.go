// Package compliance maps a usage figure onto a discrete status tier.
//
// Cutoffs differ between deployments of the same rule, so they are data: a
// Policy names the metric it reads (used or remaining days) and an ordered
// list of bands. DefaultPolicy is the documented default.
package compliance

import (
	"fmt"
	"sort"
	"strings"
)

// Status is a compliance tier.
type Status string

const (
	StatusSafe     Status = "safe"
	StatusCaution  Status = "caution" // four-tier banding only
	StatusWarning  Status = "warning"
	StatusOverstay Status = "overstay"
)

// Statuses lists every tier in ascending severity.
var Statuses = []Status{StatusSafe, StatusCaution, StatusWarning, StatusOverstay}

// Metric selects the figure a Policy reads.
type Metric string

const (
	MetricUsed      Metric = "used"
	MetricRemaining Metric = "remaining"
)

// Band assigns Status once the metric crosses Threshold. For MetricUsed a band
// matches when used >= Threshold; for MetricRemaining when remaining <= Threshold.
type Band struct {
	Threshold int    `json:"threshold" koanf:"threshold"`
	Status    Status `json:"status" koanf:"status"`
}

// Policy is a classification table.
type Policy struct {
	Name   string `json:"name"`
	Metric Metric `json:"metric"`
	Bands  []Band `json:"bands"`
}

var (
	// DefaultPolicy: warning from 80 used days, overstay from 90.
	DefaultPolicy = Policy{
		Name:   "default",
		Metric: MetricUsed,
		Bands: []Band{
			{Threshold: 90, Status: StatusOverstay},
			{Threshold: 80, Status: StatusWarning},
		},
	}

	// StrictPolicy warns from 60 used days.
	StrictPolicy = Policy{
		Name:   "strict",
		Metric: MetricUsed,
		Bands: []Band{
			{Threshold: 90, Status: StatusOverstay},
			{Threshold: 60, Status: StatusWarning},
		},
	}

	// RiskBandPolicy is the four-tier remaining-days banding.
	RiskBandPolicy = Policy{
		Name:   "risk",
		Metric: MetricRemaining,
		Bands: []Band{
			{Threshold: 0, Status: StatusOverstay},
			{Threshold: 29, Status: StatusWarning},
			{Threshold: 74, Status: StatusCaution},
		},
	}
)

// PolicyByName resolves a preset.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultPolicy, nil
	case "strict":
		return StrictPolicy, nil
	case "risk", "risk-band", "risk_band":
		return RiskBandPolicy, nil
	default:
		return Policy{}, fmt.Errorf("compliance: unknown policy %q (want default, strict or risk)", name)
	}
}

// NewPolicy builds a three-tier policy from a warning and an overstay cutoff.
func NewPolicy(metric Metric, warn, overstay int) (Policy, error) {
	p := Policy{
		Name:   "custom",
		Metric: metric,
		Bands: []Band{
			{Threshold: overstay, Status: StatusOverstay},
			{Threshold: warn, Status: StatusWarning},
		},
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p.normalized(), nil
}

// WithBand returns a copy of p whose band for status sits at threshold,
// adding the band if p has none for status.
func (p Policy) WithBand(status Status, threshold int) (Policy, error) {
	out := Policy{Name: p.Name, Metric: p.Metric, Bands: make([]Band, 0, len(p.Bands)+1)}
	replaced := false
	for _, b := range p.Bands {
		if b.Status == status {
			b.Threshold = threshold
			replaced = true
		}
		out.Bands = append(out.Bands, b)
	}
	if !replaced {
		out.Bands = append(out.Bands, Band{Threshold: threshold, Status: status})
	}
	if err := out.Validate(); err != nil {
		return Policy{}, err
	}
	return out.normalized(), nil
}

// Threshold returns the cutoff of the band for status.
func (p Policy) Threshold(status Status) (int, bool) {
	for _, b := range p.Bands {
		if b.Status == status {
			return b.Threshold, true
		}
	}
	return 0, false
}

// Validate checks the metric, statuses and band ordering.
func (p Policy) Validate() error {
	var errs []string
	if p.Metric != MetricUsed && p.Metric != MetricRemaining {
		errs = append(errs, fmt.Sprintf("metric must be %q or %q", MetricUsed, MetricRemaining))
	}

	rank := make(map[Status]int, len(Statuses))
	for i, s := range Statuses {
		rank[s] = i
	}
	for _, b := range p.Bands {
		if _, ok := rank[b.Status]; !ok {
			errs = append(errs, fmt.Sprintf("unknown status %q", b.Status))
		}
		if b.Threshold < 0 {
			errs = append(errs, fmt.Sprintf("%s threshold must not be negative", b.Status))
		}
	}

	// Severity must rise as the metric worsens, or the table is unreachable.
	bands := p.normalized().Bands
	for i := 1; i < len(bands); i++ {
		prev, cur := bands[i-1], bands[i]
		if prev.Threshold == cur.Threshold {
			errs = append(errs, fmt.Sprintf("%s and %s share threshold %d", prev.Status, cur.Status, cur.Threshold))
			continue
		}
		if rank[cur.Status] >= rank[prev.Status] {
			errs = append(errs, fmt.Sprintf("%s must be less severe than %s", cur.Status, prev.Status))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("compliance: policy %q: %s", p.Name, strings.Join(errs, "; "))
	}
	return nil
}

// normalized orders bands worst-first: descending thresholds for used days,
// ascending for remaining days.
func (p Policy) normalized() Policy {
	bands := make([]Band, len(p.Bands))
	copy(bands, p.Bands)
	sort.SliceStable(bands, func(i, j int) bool {
		if p.Metric == MetricRemaining {
			return bands[i].Threshold < bands[j].Threshold
		}
		return bands[i].Threshold > bands[j].Threshold
	})
	p.Bands = bands
	return p
}

// Classify returns the tier for the given usage figures. Only the figure the
// policy's metric names is read.
func (p Policy) Classify(used, remaining int) Status {
	for _, b := range p.normalized().Bands {
		switch p.Metric {
		case MetricRemaining:
			if remaining <= b.Threshold {
				return b.Status
			}
		default:
			if used >= b.Threshold {
				return b.Status
			}
		}
	}
	return StatusSafe
}
