// Package availability implements the Availability Probe (C4): given a plan
// code, option set, and candidate datacenters, returns per-datacenter stock
// state, cached briefly to coalesce duplicate lookups within one scheduler
// tick (spec.md §4.4).
package availability

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/telemetry"
	"github.com/ovhfleet/acquire/pkg/account"
)

// ovhDoer is the slice of *ovhclient.Pool that Prober needs — narrowed so
// tests can supply a fake without standing up real signed HTTP calls.
type ovhDoer interface {
	Do(ctx context.Context, accountID uuid.UUID, method, path string, body, out any) error
}

// Prober issues availability probes through an OVH client pool, caching
// results per (region, plan, fingerprint).
type Prober struct {
	pool  ovhDoer
	cache *cache
}

// NewProber creates a Prober backed by pool.
func NewProber(pool ovhDoer) *Prober {
	return &Prober{pool: pool, cache: newCache()}
}

type availabilityRow struct {
	PlanCode    string `json:"planCode"`
	Fqn         string `json:"fqn"`
	Datacenters []struct {
		Datacenter   string `json:"datacenter"`
		Availability string `json:"availability"`
	} `json:"datacenters"`
}

// optionsFromFqn recovers the sorted option codes embedded in an OVH
// availability row's fqn, which is always `<planCode>.<option1>.<option2>...`.
func optionsFromFqn(fqn, planCode string) []string {
	rest := strings.TrimPrefix(fqn, planCode)
	rest = strings.TrimPrefix(rest, ".")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, ".")
}

// Probe returns the availability state of each datacenter in datacenters
// for the given plan/options/account. An empty datacenters slice returns
// every datacenter OVH reports for the matching fingerprint.
func (p *Prober) Probe(ctx context.Context, acct account.Account, planCode string, options, datacenters []string) (map[string]State, error) {
	fp := Fingerprint(options)
	key := cacheKey{region: acct.EndpointRegion, planCode: planCode, fingerprint: fp}

	if cached, ok := p.cache.get(key); ok {
		telemetry.ProbeDuration.WithLabelValues("hit").Observe(0)
		return filterDatacenters(cached, datacenters), nil
	}

	start := time.Now()
	var rows []availabilityRow
	path := fmt.Sprintf("/dedicated/server/availabilities?planCode=%s", url.QueryEscape(planCode))
	if err := p.pool.Do(ctx, acct.ID, http.MethodGet, path, nil, &rows); err != nil {
		return nil, fmt.Errorf("availability: probing %s: %w", planCode, err)
	}
	telemetry.ProbeDuration.WithLabelValues("miss").Observe(time.Since(start).Seconds())

	result := make(map[string]State)
	matched := false
	for _, row := range rows {
		if row.PlanCode != planCode {
			continue
		}
		if Fingerprint(optionsFromFqn(row.Fqn, planCode)) != fp {
			continue
		}
		matched = true
		for _, dc := range row.Datacenters {
			result[dc.Datacenter] = bucketToState(dc.Availability)
		}
	}

	if !matched {
		for _, dc := range datacenters {
			result[dc] = Unknown
		}
	}

	p.cache.set(key, result)
	return filterDatacenters(result, datacenters), nil
}

func filterDatacenters(result map[string]State, datacenters []string) map[string]State {
	if len(datacenters) == 0 {
		out := make(map[string]State, len(result))
		for k, v := range result {
			out[k] = v
		}
		return out
	}

	out := make(map[string]State, len(datacenters))
	for _, dc := range datacenters {
		if state, ok := result[dc]; ok {
			out[dc] = state
		} else {
			out[dc] = Unknown
		}
	}
	return out
}
