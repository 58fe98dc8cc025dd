package store

import (
	"sync"

	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// PositionStore is the in-memory registry of position and portfolio risk
// records. Portfolios never hold position objects; they are linked to
// positions only through the owner index, so the aggregator can iterate an
// owner's id set without ownership cycles.
type PositionStore struct {
	mu         sync.RWMutex
	positions  map[string]*models.PositionRisk
	ownerIndex map[string]map[string]struct{}
	portfolios map[string]*models.PortfolioRisk
	log        *logger.Logger
}

// NewPositionStore creates an empty registry.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions:  make(map[string]*models.PositionRisk),
		ownerIndex: make(map[string]map[string]struct{}),
		portfolios: make(map[string]*models.PortfolioRisk),
		log:        logger.GetLogger("store.positions"),
	}
}

// Insert registers a new position. Fails with DuplicateID when the id is
// already present.
func (s *PositionStore) Insert(pos *models.PositionRisk) error {
	if pos == nil || pos.ID == "" {
		return errors.InvalidInput("position record must carry an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[pos.ID]; exists {
		return errors.DuplicateID(pos.ID)
	}

	s.positions[pos.ID] = pos
	ids, ok := s.ownerIndex[pos.Owner]
	if !ok {
		ids = make(map[string]struct{})
		s.ownerIndex[pos.Owner] = ids
	}
	ids[pos.ID] = struct{}{}
	return nil
}

// Update replaces an existing position record. Fails with NotFound when
// the id is unknown.
func (s *PositionStore) Update(pos *models.PositionRisk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[pos.ID]; !exists {
		return errors.NotFound("position", pos.ID)
	}
	s.positions[pos.ID] = pos
	return nil
}

// Get retrieves a position by id.
func (s *PositionStore) Get(id string) (*models.PositionRisk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, exists := s.positions[id]
	if !exists {
		return nil, errors.NotFound("position", id)
	}
	return pos, nil
}

// Delete removes a position and its owner-index entry.
func (s *PositionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.positions[id]
	if !exists {
		return errors.NotFound("position", id)
	}
	delete(s.positions, id)
	if ids, ok := s.ownerIndex[pos.Owner]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.ownerIndex, pos.Owner)
		}
	}
	return nil
}

// ListByOwner returns the owner's position records.
func (s *PositionStore) ListByOwner(owner string) []*models.PositionRisk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.ownerIndex[owner]
	out := make([]*models.PositionRisk, 0, len(ids))
	for id := range ids {
		if pos, ok := s.positions[id]; ok {
			out = append(out, pos)
		}
	}
	return out
}

// Owners returns every owner with at least one registered position.
func (s *PositionStore) Owners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.ownerIndex))
	for owner := range s.ownerIndex {
		out = append(out, owner)
	}
	return out
}

// Count returns the number of registered positions.
func (s *PositionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// SavePortfolio stores the latest aggregate for an owner.
func (s *PositionStore) SavePortfolio(p *models.PortfolioRisk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[p.Owner] = p
}

// GetPortfolio retrieves the stored aggregate for an owner.
func (s *PositionStore) GetPortfolio(owner string) (*models.PortfolioRisk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.portfolios[owner]
	if !exists {
		return nil, errors.NotFound("portfolio", owner)
	}
	return p, nil
}

// DeletePortfolio drops an owner's aggregate once their last position is gone.
func (s *PositionStore) DeletePortfolio(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.portfolios, owner)
}
