package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"medwaste-backend/internal/database"
	"medwaste-backend/internal/database/memstore"
	"medwaste-backend/internal/models"
)

// seedMemory loads the same demo accounts as the Postgres seed, with a
// smaller container set
func seedMemory(ctx context.Context, store *memstore.Store) error {
	log.Println("🌱 Seeding in-memory store...")

	f := func(v float64) *float64 { return &v }
	s := func(v string) *string { return &v }

	store.PutPlant(models.IncinerationPlant{ID: "plant-north", Name: "North Valley Incineration", Address: "1200 Industrial Pkwy, Milpitas", Latitude: f(37.4323), Longitude: f(-121.8996), Active: true})
	store.PutPlant(models.IncinerationPlant{ID: "plant-south", Name: "South Bay Thermal Treatment", Address: "88 Refinery Rd, Morgan Hill", Latitude: f(37.1305), Longitude: f(-121.6544), Active: true})

	now := time.Now().Unix()
	for _, c := range []struct {
		label    string
		kind     models.WasteType
		lat, lng float64
	}{
		{"ER-01 Sharps", models.WasteTypeSharps, 37.3329, -121.8866},
		{"ER-02 Infectious", models.WasteTypeInfectious, 37.3361, -121.8869},
		{"OR-01 Pathological", models.WasteTypePathological, 37.3343, -121.8936},
		{"PH-01 Pharmaceutical", models.WasteTypePharmaceutical, 37.3351, -121.8894},
		{"LAB-01 Chemical", models.WasteTypeChemical, 37.3352, -121.8931},
	} {
		store.PutContainer(models.WasteContainer{
			ID:         uuid.New().String(),
			Label:      c.label,
			CompanyID:  database.SeedCompanyID,
			Latitude:   f(c.lat),
			Longitude:  f(c.lng),
			WasteType:  c.kind,
			LastUpdate: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	for _, u := range []struct {
		email, password, name, role string
		companyID, plantID          *string
	}{
		{"driver@medwaste.local", "driver123", "John Driver", models.RoleDriver, s(database.SeedCompanyID), nil},
		{"facility@medwaste.local", "facility123", "Fiona Facility", models.RoleFacility, s(database.SeedCompanyID), nil},
		{"operator@medwaste.local", "operator123", "Oscar Operator", models.RoleIncinerator, nil, s("plant-north")},
		{"admin@medwaste.local", "admin123", "Admin User", models.RoleAdmin, nil, nil},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user := &models.User{
			ID:        uuid.New().String(),
			Email:     u.email,
			Password:  string(hash),
			Name:      u.name,
			Role:      u.role,
			CompanyID: u.companyID,
			PlantID:   u.plantID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("seed user %s: %w", u.email, err)
		}
		log.Printf("  ✓ Created user: %s (%s)", u.email, u.role)
	}
	return nil
}
