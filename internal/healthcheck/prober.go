// Package healthcheck probes Spring Boot actuator health endpoints.
package healthcheck

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/treykane/devdeck/internal/appconfig"
	"github.com/treykane/devdeck/internal/util"
)

// StatusUp is the actuator status of a healthy service or component.
const StatusUp = "UP"

// ServiceResult is the outcome of probing one service.
type ServiceResult struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	Up            bool   `json:"up"`
	DB            *bool  `json:"db,omitempty"`
	Elasticsearch *bool  `json:"elasticsearch,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SectionResult holds the results of one configured section, in
// configured order.
type SectionResult struct {
	Name     string          `json:"name"`
	Services []ServiceResult `json:"services"`
}

type componentStatus struct {
	Status string `json:"status"`
}

// actuatorHealth is the subset of /actuator/health that devdeck reads.
type actuatorHealth struct {
	Status     string `json:"status"`
	Components struct {
		DB            *componentStatus `json:"db"`
		Elasticsearch *componentStatus `json:"elasticsearch"`
	} `json:"components"`
}

// Recorder receives every probe result. *metrics.Metrics satisfies it.
type Recorder interface {
	SetHealth(section, service string, up bool)
}

// Prober runs health probes. The zero value is not usable; use New.
type Prober struct {
	client   *http.Client
	timeout  time.Duration
	recorder Recorder
}

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRecorder reports every result to r.
func WithRecorder(r Recorder) Option {
	return func(p *Prober) { p.recorder = r }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) {
		if c != nil {
			p.client = c
		}
	}
}

// New creates a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		client:  &http.Client{},
		timeout: util.HealthProbeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProbeAll probes every service of every section concurrently and returns
// the results in configured order.
func (p *Prober) ProbeAll(ctx context.Context, sections []appconfig.HealthSection) []SectionResult {
	out := make([]SectionResult, len(sections))
	var wg sync.WaitGroup
	for i, sec := range sections {
		out[i] = SectionResult{Name: sec.Name, Services: make([]ServiceResult, len(sec.Services))}
		for j, svc := range sec.Services {
			wg.Add(1)
			go func(i, j int, section string, svc appconfig.HealthService) {
				defer wg.Done()
				res := p.Probe(ctx, svc)
				out[i].Services[j] = res
				if p.recorder != nil {
					p.recorder.SetHealth(section, svc.Name, res.Up)
				}
			}(i, j, sec.Name, svc)
		}
	}
	wg.Wait()
	return out
}

// Probe requests one service's health URL. The service is up when the
// request completes and the top-level status is UP. Actuator answers 503
// with a DOWN body, so the body is read whatever the HTTP status.
func (p *Prober) Probe(ctx context.Context, svc appconfig.HealthService) ServiceResult {
	res := ServiceResult{Name: svc.Name, URL: svc.URL}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.URL, nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Debug("health probe failed", "service", svc.Name, "url", svc.URL, "error", err)
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	var h actuatorHealth
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&h); err != nil {
		res.Error = "decode health: " + err.Error()
		return res
	}
	res.Up = h.Status == StatusUp
	res.DB = componentUp(h.Components.DB)
	res.Elasticsearch = componentUp(h.Components.Elasticsearch)
	return res
}

func componentUp(c *componentStatus) *bool {
	if c == nil {
		return nil
	}
	up := c.Status == StatusUp
	return &up
}
