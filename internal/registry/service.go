package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/harborline/checkout-engine/pkg/db/models"
	"github.com/harborline/checkout-engine/pkg/enums"
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
	"github.com/harborline/checkout-engine/pkg/types"
)

// Service is the read surface over merchant module configuration. Lookups hit
// an in-memory snapshot keyed by (merchant, kind, code); the snapshot is
// filled read-through per merchant and can be invalidated with Reload.
type Service interface {
	ListModules(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind) ([]models.IntegrationModule, error)
	GetModule(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind, code string) (*models.IntegrationModule, error)
	GetConfiguration(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind, code string) (types.ConfigMap, error)
	Reload(merchantID uuid.UUID)
}

type moduleKey struct {
	merchantID uuid.UUID
	kind       enums.ModuleKind
	code       string
}

type merchantSnapshot struct {
	byKey  map[moduleKey]*models.IntegrationModule
	byKind map[enums.ModuleKind][]models.IntegrationModule
}

type service struct {
	repo Repository

	mu        sync.RWMutex
	snapshots map[uuid.UUID]*merchantSnapshot
}

// NewService wires a module registry service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("registry repository required")
	}
	return &service{
		repo:      repo,
		snapshots: make(map[uuid.UUID]*merchantSnapshot),
	}, nil
}

func (s *service) ListModules(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind) ([]models.IntegrationModule, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id is required")
	}
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid module kind %q", kind))
	}

	snap, err := s.snapshot(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	modules := snap.byKind[kind]
	enabled := make([]models.IntegrationModule, 0, len(modules))
	for _, m := range modules {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	return enabled, nil
}

func (s *service) GetModule(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind, code string) (*models.IntegrationModule, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id is required")
	}
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "module code is required")
	}

	snap, err := s.snapshot(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	// Lookup is case-sensitive on code.
	module, ok := snap.byKey[moduleKey{merchantID: merchantID, kind: kind, code: code}]
	if !ok || !module.Enabled {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("module %q not configured", code))
	}
	copied := *module
	return &copied, nil
}

func (s *service) GetConfiguration(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind, code string) (types.ConfigMap, error) {
	module, err := s.GetModule(ctx, merchantID, kind, code)
	if err != nil {
		return nil, err
	}
	if module.Config == nil {
		return types.ConfigMap{}, nil
	}
	return module.Config, nil
}

// Reload drops the cached snapshot for a merchant; the next lookup rebuilds it.
func (s *service) Reload(merchantID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, merchantID)
}

func (s *service) snapshot(ctx context.Context, merchantID uuid.UUID) (*merchantSnapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[merchantID]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	modules, err := s.repo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading merchant modules")
	}

	snap = &merchantSnapshot{
		byKey:  make(map[moduleKey]*models.IntegrationModule, len(modules)),
		byKind: make(map[enums.ModuleKind][]models.IntegrationModule),
	}
	for i := range modules {
		m := modules[i]
		snap.byKey[moduleKey{merchantID: merchantID, kind: m.Kind, code: m.Code}] = &modules[i]
		snap.byKind[m.Kind] = append(snap.byKind[m.Kind], m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.snapshots[merchantID]; ok {
		return existing, nil
	}
	s.snapshots[merchantID] = snap
	return snap, nil
}
