package doctor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/colonyops/auditagent/internal/core/policy"
)

// CollectorCheck verifies that the collector's policy endpoint answers and
// returns a parseable document.
type CollectorCheck struct {
	fetch policy.FetchFunc
	url   string
}

// NewCollectorCheck creates a collector reachability check.
func NewCollectorCheck(client *http.Client, url, clientID string) *CollectorCheck {
	return &CollectorCheck{fetch: policy.HTTPFetcher(client, url, clientID), url: url}
}

func (c *CollectorCheck) Name() string {
	return "Collector"
}

func (c *CollectorCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	data, err := c.fetch(ctx)
	if err != nil {
		result.Items = append(result.Items, warn(c.url, fmt.Sprintf("unreachable: %v (defaults will be used)", err)))
		return result
	}

	p, err := policy.Parse(data)
	if err != nil {
		result.Items = append(result.Items, warn(c.url, fmt.Sprintf("unparseable policy: %v", err)))
		return result
	}

	result.Items = append(result.Items, pass(c.url,
		fmt.Sprintf("capture every %s, idle after %s", p.CaptureInterval, p.IdleTimeout)))
	return result
}
