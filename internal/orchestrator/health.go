package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthTimeout = 5 * time.Second

// Health states.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// HealthChecker is a collaborator that can report its readiness.
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// CollaboratorHealth is the readiness of one collaborator.
type CollaboratorHealth struct {
	Name   string
	Status string
	Error  string
}

// Health is the aggregated readiness of the service.
type Health struct {
	Status        string
	Collaborators []CollaboratorHealth
}

// Health checks every collaborator concurrently. The service is degraded
// when any of them is not healthy.
func (o *Orchestrator) Health(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var (
		eg      errgroup.Group
		mu      sync.Mutex
		results = make([]CollaboratorHealth, 0, len(o.options.HealthChecks))
	)

	for _, checker := range o.options.HealthChecks {
		eg.Go(func() error {
			result := CollaboratorHealth{Name: checker.Name(), Status: HealthOK}

			err := checker.HealthCheck(ctx)
			if err != nil {
				result.Status = HealthDegraded
				result.Error = err.Error()
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()

			return nil
		})
	}

	_ = eg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	health := Health{Status: HealthOK, Collaborators: results}

	for _, result := range results {
		if result.Status != HealthOK {
			health.Status = HealthDegraded
		}
	}

	return health
}
