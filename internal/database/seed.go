package database

import (
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// SeedCompanyID is the facility company the seeded driver, supervisor and
// containers belong to
const SeedCompanyID = "st-mary-hospital"

func SeedPlants(db *sqlx.DB) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM incineration_plants"); err != nil {
		return err
	}

	if count > 0 {
		log.Println("✓ Incineration plants already seeded, skipping...")
		return nil
	}

	log.Println("🌱 Seeding incineration plants...")

	plants := []map[string]interface{}{
		{"id": "plant-north", "name": "North Valley Incineration", "address": "1200 Industrial Pkwy, Milpitas", "latitude": 37.4323, "longitude": -121.8996, "active": true},
		{"id": "plant-south", "name": "South Bay Thermal Treatment", "address": "88 Refinery Rd, Morgan Hill", "latitude": 37.1305, "longitude": -121.6544, "active": true},
		{"id": "plant-east", "name": "East Hills Incinerator (maintenance)", "address": "5 Quarry Ln, San Jose", "latitude": 37.3700, "longitude": -121.7800, "active": false},
	}

	for _, plant := range plants {
		_, err := db.NamedExec(`
			INSERT INTO incineration_plants (id, name, address, latitude, longitude, active)
			VALUES (:id, :name, :address, :latitude, :longitude, :active)
		`, plant)
		if err != nil {
			return err
		}
	}

	log.Printf("✓ Successfully seeded %d incineration plants", len(plants))
	return nil
}

func SeedContainers(db *sqlx.DB) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM waste_containers"); err != nil {
		return err
	}

	if count > 0 {
		log.Println("✓ Containers already seeded, skipping...")
		return nil
	}

	log.Println("🌱 Seeding waste containers...")

	containers := []map[string]interface{}{
		{"label": "ER-01 Sharps", "fullness": 45, "temperature": 21.5, "waste_type": "sharps", "latitude": 37.3329, "longitude": -121.8866},
		{"label": "ER-02 Infectious", "fullness": 67, "temperature": 20.1, "waste_type": "infectious", "latitude": 37.3361, "longitude": -121.8869},
		{"label": "OR-01 Pathological", "fullness": 23, "temperature": 4.2, "waste_type": "pathological", "latitude": 37.3343, "longitude": -121.8936},
		{"label": "OR-02 Infectious", "fullness": 89, "temperature": 19.8, "waste_type": "infectious", "latitude": 37.3313, "longitude": -121.8917},
		{"label": "PH-01 Pharmaceutical", "fullness": 12, "temperature": 22.0, "waste_type": "pharmaceutical", "latitude": 37.3351, "longitude": -121.8894},
		{"label": "LAB-01 Chemical", "fullness": 78, "temperature": 18.4, "waste_type": "chemical", "latitude": 37.3352, "longitude": -121.8931},
		{"label": "ICU-01 Sharps", "fullness": 56, "temperature": 21.0, "waste_type": "sharps", "latitude": 37.3357, "longitude": -121.8826},
		{"label": "ICU-02 Infectious", "fullness": 34, "temperature": 20.7, "waste_type": "infectious", "latitude": 37.3339, "longitude": -121.8905},
		{"label": "WARD-01 General", "fullness": 91, "temperature": 23.3, "waste_type": "general", "latitude": 37.3326, "longitude": -121.8863},
		{"label": "WARD-02 Sharps", "fullness": 15, "temperature": 22.8, "waste_type": "sharps", "latitude": 37.3344, "longitude": -121.8877},
	}

	for _, c := range containers {
		c["id"] = uuid.New().String()
		c["company_id"] = SeedCompanyID
		_, err := db.NamedExec(`
			INSERT INTO waste_containers (id, label, company_id, latitude, longitude, fullness, temperature, waste_type)
			VALUES (:id, :label, :company_id, :latitude, :longitude, :fullness, :temperature, :waste_type)
		`, c)
		if err != nil {
			return err
		}
	}

	log.Printf("✓ Successfully seeded %d containers", len(containers))
	return nil
}

func SeedUsers(db *sqlx.DB) error {
	// Check if users already exist
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM users"); err != nil {
		return err
	}

	if count > 0 {
		log.Println("✓ Users already seeded, skipping...")
		return nil
	}

	log.Println("🌱 Seeding test users...")

	// Hash passwords
	driverPassword, err := bcrypt.GenerateFromPassword([]byte("driver123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	adminPassword, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	facilityPassword, err := bcrypt.GenerateFromPassword([]byte("facility123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	operatorPassword, err := bcrypt.GenerateFromPassword([]byte("operator123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	users := []map[string]interface{}{
		{
			"id":         uuid.New().String(),
			"email":      "driver@medwaste.local",
			"password":   string(driverPassword),
			"name":       "John Driver",
			"role":       "driver",
			"company_id": SeedCompanyID,
			"plant_id":   nil,
		},
		{
			"id":         uuid.New().String(),
			"email":      "facility@medwaste.local",
			"password":   string(facilityPassword),
			"name":       "Fiona Facility",
			"role":       "facility",
			"company_id": SeedCompanyID,
			"plant_id":   nil,
		},
		{
			"id":         uuid.New().String(),
			"email":      "operator@medwaste.local",
			"password":   string(operatorPassword),
			"name":       "Oscar Operator",
			"role":       "incinerator",
			"company_id": nil,
			"plant_id":   "plant-north",
		},
		{
			"id":         uuid.New().String(),
			"email":      "admin@medwaste.local",
			"password":   string(adminPassword),
			"name":       "Admin User",
			"role":       "admin",
			"company_id": nil,
			"plant_id":   nil,
		},
	}

	for _, user := range users {
		query := `
			INSERT INTO users (id, email, password, name, role, company_id, plant_id)
			VALUES (:id, :email, :password, :name, :role, :company_id, :plant_id)
		`
		if _, err := db.NamedExec(query, user); err != nil {
			return err
		}
		log.Printf("  ✓ Created user: %s (%s)", user["email"], user["role"])
	}

	log.Println("✓ Successfully seeded test users")
	log.Println("  📧 Driver:   driver@medwaste.local / driver123")
	log.Println("  📧 Facility: facility@medwaste.local / facility123")
	log.Println("  📧 Operator: operator@medwaste.local / operator123")
	log.Println("  📧 Admin:    admin@medwaste.local / admin123")
	return nil
}

// Seed loads reference data and test accounts. Each step skips itself when
// its table already has rows.
func Seed(db *sqlx.DB) error {
	for _, step := range []func(*sqlx.DB) error{SeedPlants, SeedContainers, SeedUsers} {
		if err := step(db); err != nil {
			return err
		}
	}
	return nil
}
