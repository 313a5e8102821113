package services

import (
	"context"
	"fmt"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/models"
)

// ContainerService serves container telemetry to facility staff and drivers
type ContainerService struct {
	store Store
}

func NewContainerService(store Store) *ContainerService {
	return &ContainerService{store: store}
}

// List returns a company's containers. Facility staff only see their own
// company; drivers collect across companies.
func (s *ContainerService) List(ctx context.Context, actor models.Actor, companyID string) ([]models.WasteContainer, error) {
	if companyID == "" && actor.CompanyID != nil {
		companyID = *actor.CompanyID
	}
	if companyID == "" {
		return nil, apperr.Validation("company_id", "company is required")
	}
	if err := checkCompany(actor, companyID); err != nil {
		return nil, err
	}
	return s.store.ListContainers(ctx, companyID)
}

// Get returns one container
func (s *ContainerService) Get(ctx context.Context, actor models.Actor, id string) (*models.WasteContainer, error) {
	c, err := s.store.GetContainer(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkCompany(actor, c.CompanyID); err != nil {
		return nil, err
	}
	return c, nil
}

func checkCompany(actor models.Actor, companyID string) error {
	if actor.Role == models.RoleAdmin || actor.Role == models.RoleDriver {
		return nil
	}
	if actor.CompanyID == nil || *actor.CompanyID != companyID {
		return fmt.Errorf("%w: company %s", apperr.ErrForbidden, companyID)
	}
	return nil
}

// PlantService serves incineration plant reference data
type PlantService struct {
	store Store
}

func NewPlantService(store Store) *PlantService {
	return &PlantService{store: store}
}

// List returns all plants, optionally only the active ones
func (s *PlantService) List(ctx context.Context, activeOnly bool) ([]models.IncinerationPlant, error) {
	plants, err := s.store.ListPlants(ctx)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return plants, nil
	}
	active := make([]models.IncinerationPlant, 0, len(plants))
	for _, p := range plants {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

func (s *PlantService) Get(ctx context.Context, id string) (*models.IncinerationPlant, error) {
	return s.store.GetPlant(ctx, id)
}
