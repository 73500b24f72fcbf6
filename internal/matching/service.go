package matching

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/config"
	"fieldserve/dispatch/dispatch-backend/internal/providers"
	"fieldserve/dispatch/dispatch-backend/pkg/geocell"
	"fieldserve/dispatch/dispatch-backend/pkg/geospatial"
)

// Match is one ranked proximity result.
type Match struct {
	ProviderID uuid.UUID `json:"provider_id"`
	UserID     uuid.UUID `json:"user_id"`
	Name       string    `json:"name"`
	Rating     float64   `json:"rating"`
	DistanceKm float64   `json:"distance_km"`
	ETAMinutes int       `json:"eta_minutes"`
	ETA        string    `json:"eta"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	BaseRate   float64   `json:"base_rate"`
	Skills     []string  `json:"skills"`
}

// Options tune a nearby search.
type Options struct {
	Limit int
	Skill string
	// IncludeUnapproved lifts the eligibility filter for internal/admin
	// callers.
	IncludeUnapproved bool
}

// Request is one entry of a batch match.
type Request struct {
	RequestID string  `json:"request_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// ETAProvider replaces the fixed-speed estimate with a route-based one
// when a routing collaborator is configured.
type ETAProvider interface {
	ETAMinutes(ctx context.Context, fromLat, fromLng, toLat, toLng float64) (int, error)
}

// Service ranks eligible providers by proximity. Read-only and safe to
// run fully in parallel across searchers.
type Service struct {
	providers providers.Repository
	eta       ETAProvider
	policy    config.PolicyConfig
	logger    *zap.Logger
}

// NewService creates a new matching service. eta may be nil.
func NewService(providerRepo providers.Repository, eta ETAProvider, policy config.PolicyConfig, logger *zap.Logger) *Service {
	return &Service{
		providers: providerRepo,
		eta:       eta,
		policy:    policy,
		logger:    logger,
	}
}

// FindNearby returns at most opts.Limit online providers within radiusKm
// of the query point, nearest first with rating as a tie-break. Storage
// faults degrade to an empty result set: "no matches" is a safe default
// for a user-facing search.
func (s *Service) FindNearby(ctx context.Context, lat, lng, radiusKm float64, opts Options) ([]Match, error) {
	if err := geospatial.ValidateCoordinates(lat, lng); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = s.policy.DefaultRadiusKm
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.policy.MatchLimit
	}

	cell, err := geocell.Encode(lat, lng, geocell.DefaultPrecision)
	if err != nil {
		return nil, err
	}
	cells := geocell.Neighbors(cell)

	candidates, err := s.providers.ListOnlineInCells(ctx, cells, !opts.IncludeUnapproved)
	if err != nil {
		s.logger.Error("Nearby search degraded to empty result", zap.Error(err),
			zap.Float64("lat", lat), zap.Float64("lng", lng))
		return []Match{}, nil
	}

	matches := make([]Match, 0, len(candidates))
	for i := range candidates {
		p := &candidates[i]
		if p.Lat == nil || p.Lng == nil {
			continue
		}
		if opts.Skill != "" && !hasSkill(p.Skills, opts.Skill) {
			continue
		}

		distance := geospatial.DistanceKm(lat, lng, *p.Lat, *p.Lng)
		if distance > radiusKm {
			continue
		}

		minutes, formatted := s.estimate(ctx, lat, lng, *p.Lat, *p.Lng, distance)
		matches = append(matches, Match{
			ProviderID: p.ID,
			UserID:     p.UserID,
			Name:       p.Name,
			Rating:     p.Rating,
			DistanceKm: distance,
			ETAMinutes: minutes,
			ETA:        formatted,
			Lat:        *p.Lat,
			Lng:        *p.Lng,
			BaseRate:   p.BaseRate,
			Skills:     p.Skills,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].DistanceKm != matches[j].DistanceKm {
			return matches[i].DistanceKm < matches[j].DistanceKm
		}
		return matches[i].Rating > matches[j].Rating
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// FindClosest returns the single nearest provider, or nil if none is in
// range.
func (s *Service) FindClosest(ctx context.Context, lat, lng float64) (*Match, error) {
	matches, err := s.FindNearby(ctx, lat, lng, 10, Options{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// BatchMatch resolves many pending requests by repeated single-closest
// lookups. No cross-request fairness is guaranteed: the first processed
// request gets first pick, and the same provider may be offered to
// several requests.
func (s *Service) BatchMatch(ctx context.Context, requests []Request) (map[string]Match, error) {
	out := make(map[string]Match, len(requests))
	for _, req := range requests {
		match, err := s.FindClosest(ctx, req.Lat, req.Lng)
		if err != nil {
			return nil, err
		}
		if match != nil {
			out[req.RequestID] = *match
		}
	}
	return out, nil
}

func (s *Service) estimate(ctx context.Context, fromLat, fromLng, toLat, toLng, distanceKm float64) (int, string) {
	if s.eta != nil {
		if minutes, err := s.eta.ETAMinutes(ctx, fromLat, fromLng, toLat, toLng); err == nil {
			return minutes, geospatial.FormatMinutes(minutes)
		}
	}
	return geospatial.EstimateETA(distanceKm, s.policy.AssumedSpeedKmh)
}

func hasSkill(skills []string, want string) bool {
	for _, s := range skills {
		if s == want {
			return true
		}
	}
	return false
}
