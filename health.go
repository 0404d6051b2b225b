// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hosting

import (
	"context"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode"

	"rivaas.dev/hosting/container"
)

// HealthReporter is implemented by registered services that want to
// contribute to the health endpoint.
type HealthReporter interface {
	CheckHealth(ctx context.Context) error
}

// Aggregate health states.
const (
	HealthOK      = "OK"
	HealthPartial = "PARTIAL"
	HealthFailed  = "FAILED"
)

// healthReport is the health endpoint's body.
type healthReport struct {
	App      string            `json:"app"`
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Uptime   int64             `json:"uptime"`
	Memory   uint64            `json:"memory"`
}

// healthCheck fans out to every process-scoped reporter concurrently,
// each under its own timeout, and aggregates: all pass = OK, some pass =
// PARTIAL, none pass (but some exist) = FAILED.
func (a *App) healthCheck(ctx context.Context) *healthReport {
	report := &healthReport{
		App:      a.cfg.name,
		Status:   HealthOK,
		Services: make(map[string]string),
		Uptime:   time.Since(a.started).Milliseconds(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	report.Memory = ms.Alloc

	type probe struct {
		name     string
		reporter HealthReporter
	}
	var probes []probe
	scope := a.registry.NewScope()
	defer scope.Close()
	for _, d := range a.registry.Descriptors() {
		if d.Lifetime != container.Process {
			continue
		}
		v, err := scope.Resolve(d.Advertised)
		if err != nil {
			continue
		}
		if hr, ok := v.Interface().(HealthReporter); ok {
			probes = append(probes, probe{name: serviceName(d), reporter: hr})
		}
	}
	if len(probes) == 0 {
		return report
	}

	timeout := a.cfg.healthTimeout
	results := make(map[string]string, len(probes))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range probes {
		wg.Add(1)
		go func(p probe) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			status := HealthOK
			if err := p.reporter.CheckHealth(cctx); err != nil {
				status = HealthFailed
			}
			mu.Lock()
			results[p.name] = status
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	healthy := 0
	for name, status := range results {
		report.Services[name] = status
		if status == HealthOK {
			healthy++
		}
	}
	switch {
	case healthy == len(results):
		report.Status = HealthOK
	case healthy > 0:
		report.Status = HealthPartial
	default:
		report.Status = HealthFailed
	}

	return report
}

// serviceName derives the reporting key of a registration: explicit
// override, else the advertised type name with a leading interface I
// stripped, a trailing Service stripped, and the first letter lowered.
// IUserService reports as "user".
func serviceName(d container.Descriptor) string {
	if d.Name != "" {
		return d.Name
	}

	t := d.Advertised
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" { // unnamed types fall back to the full string form
		name = d.Advertised.String()
	}
	if len(name) > 1 && name[0] == 'I' && unicode.IsUpper(rune(name[1])) {
		name = name[1:]
	}
	if len(name) > len("Service") {
		name = strings.TrimSuffix(name, "Service")
	}
	if name == "" {
		return d.Advertised.String()
	}

	return strings.ToLower(name[:1]) + name[1:]
}
