// Package crossplacement serializes read-modify-write access to a profile's
// placement→variation assignment map.
package crossplacement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
)

// InfoStore persists the assignment map. cache.Store implements it.
type InfoStore interface {
	CrossPlacementInfo(ctx context.Context) (*models.CrossPlacementInfo, error)
	SaveCrossPlacementInfo(ctx context.Context, info *models.CrossPlacementInfo) error
}

// Guard holds one write lock per profile, shared by every placement.
type Guard struct {
	store  InfoStore
	logger *slog.Logger
	sem    chan struct{}
}

func NewGuard(store InfoStore, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		store:  store,
		logger: logger,
		sem:    make(chan struct{}, 1),
	}
}

// Current reads the stored map without taking the write lock.
func (g *Guard) Current(ctx context.Context) (*models.CrossPlacementInfo, error) {
	return g.store.CrossPlacementInfo(ctx)
}

// Do runs fn inside the critical section. fn receives a copy of the stored
// map (nil when none) and returns the map it wants persisted, or nil to leave
// the store untouched. The proposal is merged by Merge before writing.
func (g *Guard) Do(ctx context.Context, fn func(current *models.CrossPlacementInfo) (*models.CrossPlacementInfo, error)) error {
	if err := g.lock(ctx); err != nil {
		return err
	}
	defer g.unlock()

	current, err := g.store.CrossPlacementInfo(ctx)
	if err != nil {
		return err
	}
	proposal, err := fn(current.Clone())
	if err != nil {
		return err
	}
	next, changed := Merge(current, proposal)
	if !changed {
		if !proposal.IsEmpty() && !current.SameMap(proposal) {
			g.logger.Info("cross placement map already assigned, keeping it",
				"version", current.Version)
		}
		return nil
	}
	if err := g.store.SaveCrossPlacementInfo(ctx, next); err != nil {
		return fmt.Errorf("persist cross placement info: %w", err)
	}
	return nil
}

// ApplyServer stores a server-issued map when its version is newer than the
// stored one.
func (g *Guard) ApplyServer(ctx context.Context, info *models.CrossPlacementInfo) (bool, error) {
	if info == nil {
		return false, nil
	}
	if err := g.lock(ctx); err != nil {
		return false, err
	}
	defer g.unlock()

	current, err := g.store.CrossPlacementInfo(ctx)
	if err != nil {
		return false, err
	}
	if current != nil && info.Version <= current.Version {
		return false, nil
	}
	if err := g.store.SaveCrossPlacementInfo(ctx, info.Clone()); err != nil {
		return false, fmt.Errorf("persist cross placement info: %w", err)
	}
	return true, nil
}

// Merge decides what a local write does. Only the first non-empty map is
// accepted, and accepting it bumps the version; rewriting the same map or
// offering a different one over an existing assignment changes nothing.
func Merge(current, proposal *models.CrossPlacementInfo) (*models.CrossPlacementInfo, bool) {
	if proposal.IsEmpty() {
		return current, false
	}
	if !current.IsEmpty() {
		return current, false
	}
	next := proposal.Clone()
	next.Version = 1
	if current != nil {
		next.Version = current.Version + 1
	}
	return next, true
}

func (g *Guard) lock(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Guard) unlock() {
	<-g.sem
}
