package main

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/matching"
	"fieldserve/dispatch/dispatch-backend/internal/verification"
)

// MaintenanceWorker runs the periodic housekeeping jobs: flipping
// lapsed approvals to expired and re-ranking requests that nobody has
// accepted yet.
type MaintenanceWorker struct {
	db           *sqlx.DB
	verification *verification.Service
	matcher      *matching.Service
	logger       *zap.Logger
}

// NewMaintenanceWorker creates a new maintenance worker
func NewMaintenanceWorker(db *sqlx.DB, verificationService *verification.Service, matcher *matching.Service, logger *zap.Logger) *MaintenanceWorker {
	return &MaintenanceWorker{
		db:           db,
		verification: verificationService,
		matcher:      matcher,
		logger:       logger,
	}
}

// SweepExpiredApprovals flips approved providers whose verification
// window has lapsed to expired.
func (w *MaintenanceWorker) SweepExpiredApprovals() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	count, err := w.verification.ExpireOverdue(ctx, time.Now())
	if err != nil {
		w.logger.Error("Approval sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		w.logger.Info("Expired lapsed approvals", zap.Int("count", count))
	}
}

type staleRequest struct {
	ID  string  `db:"id"`
	Lat float64 `db:"lat"`
	Lng float64 `db:"lng"`
}

// RematchStaleRequests finds engagements still unaccepted after ten
// minutes and logs the closest currently available provider for each.
// Assignment is first-processed-wins; no fairness between requests.
func (w *MaintenanceWorker) RematchStaleRequests() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var stale []staleRequest
	err := w.db.SelectContext(ctx, &stale, `
		SELECT id, lat, lng FROM engagements
		WHERE status = 'requested' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT 100
	`, time.Now().Add(-10*time.Minute))
	if err != nil {
		w.logger.Error("Failed to load stale requests", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	requests := make([]matching.Request, 0, len(stale))
	for _, r := range stale {
		requests = append(requests, matching.Request{RequestID: r.ID, Lat: r.Lat, Lng: r.Lng})
	}

	matches, err := w.matcher.BatchMatch(ctx, requests)
	if err != nil {
		w.logger.Error("Stale-request rematch failed", zap.Error(err))
		return
	}

	for id, match := range matches {
		w.logger.Info("Rematch candidate",
			zap.String("engagement_id", id),
			zap.String("provider_id", match.ProviderID.String()),
			zap.Float64("distance_km", match.DistanceKm),
			zap.String("eta", match.ETA))
	}
	w.logger.Info("Stale-request rematch complete",
		zap.Int("stale", len(stale)),
		zap.Int("matched", len(matches)))
}
