// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package trackersvc

import (
	"context"
	"net/http"

	"github.com/seedarr/seedarr/internal/services/flaresolverr"
	"github.com/seedarr/seedarr/internal/tracker"
)

// flareSolver adapts the FlareSolverr service to the adapter's solver
// interface.
type flareSolver struct {
	svc *flaresolverr.Service
}

// SolverFor returns a challenge solver backed by the FlareSolverr service,
// or nil when the service is not configured.
func SolverFor(svc *flaresolverr.Service) tracker.ChallengeSolver {
	if svc == nil || !svc.Enabled() {
		return nil
	}
	return &flareSolver{svc: svc}
}

func (f *flareSolver) Solve(ctx context.Context, targetURL string) (*tracker.Clearance, error) {
	solution, err := f.svc.Get(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	cookies := make([]*http.Cookie, 0, len(solution.Cookies))
	for _, c := range solution.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}

	return &tracker.Clearance{
		Cookies:   cookies,
		UserAgent: solution.UserAgent,
	}, nil
}
