package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/telemed-portal/internal/database"
	"github.com/isdelr/telemed-portal/internal/models"
)

// DirectoryServiceProvider defines the interface for the hospital and insurance directories.
type DirectoryServiceProvider interface {
	CreateHospital(ctx context.Context, actor *models.User, hospital models.Hospital) (models.Hospital, error)
	ListHospitals(ctx context.Context) ([]models.Hospital, error)
	SearchHospitals(ctx context.Context, location string) ([]models.Hospital, error)
	CreateInsurancePlan(ctx context.Context, actor *models.User, plan models.InsurancePlan) (models.InsurancePlan, error)
	ListInsurancePlans(ctx context.Context) ([]models.InsurancePlan, error)
	Import(ctx context.Context, hospitals []models.Hospital, plans []models.InsurancePlan) error
}

// DirectoryService manages the flat directory entries.
type DirectoryService struct {
	db     *database.DB
	events EventServiceProvider
}

// NewDirectoryService creates a new DirectoryService.
func NewDirectoryService(db *database.DB, events EventServiceProvider) *DirectoryService {
	return &DirectoryService{db: db, events: events}
}

const (
	hospitalColumns = "id, name, address, phone, url, description, location, created_at"
	planColumns     = "id, company, premium, medical_expenses, disease_death, age_condition, created_at"
)

type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CreateHospital adds a hospital. Admin only.
func (s *DirectoryService) CreateHospital(ctx context.Context, actor *models.User, hospital models.Hospital) (models.Hospital, error) {
	if !actor.IsAdmin() {
		return models.Hospital{}, ErrForbidden
	}
	if err := validateHospital(hospital); err != nil {
		return models.Hospital{}, err
	}
	created, err := s.insertHospital(ctx, s.db, hospital)
	if err != nil {
		return models.Hospital{}, err
	}
	recordEvent(ctx, s.events, "hospital.create", "info", fmt.Sprintf("Hospital '%s' added.", created.Name), created.ID)
	return created, nil
}

func (s *DirectoryService) insertHospital(ctx context.Context, q execQuerier, h models.Hospital) (models.Hospital, error) {
	h.Name = strings.TrimSpace(h.Name)
	h.Location = strings.TrimSpace(h.Location)
	h.CreatedAt = time.Now().UTC()
	err := q.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO hospitals (name, address, phone, url, description, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		h.Name, h.Address, h.Phone, h.URL, h.Description, h.Location, h.CreatedAt,
	).Scan(&h.ID)
	if err != nil {
		return models.Hospital{}, storeErr("create hospital", err)
	}
	return h, nil
}

// ListHospitals returns every hospital in insertion order.
func (s *DirectoryService) ListHospitals(ctx context.Context) ([]models.Hospital, error) {
	return s.queryHospitals(ctx, "SELECT "+hospitalColumns+" FROM hospitals ORDER BY id")
}

// SearchHospitals returns the hospitals whose location matches exactly.
func (s *DirectoryService) SearchHospitals(ctx context.Context, location string) ([]models.Hospital, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, &ValidationError{Fields: map[string]string{"loc": "is required"}}
	}
	return s.queryHospitals(ctx, "SELECT "+hospitalColumns+" FROM hospitals WHERE location = ? ORDER BY name", location)
}

func (s *DirectoryService) queryHospitals(ctx context.Context, query string, args ...interface{}) ([]models.Hospital, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, storeErr("list hospitals", err)
	}
	defer rows.Close()

	hospitals := []models.Hospital{}
	for rows.Next() {
		var h models.Hospital
		if err := rows.Scan(&h.ID, &h.Name, &h.Address, &h.Phone, &h.URL, &h.Description, &h.Location, &h.CreatedAt); err != nil {
			return nil, storeErr("scan hospital", err)
		}
		hospitals = append(hospitals, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list hospitals", err)
	}
	return hospitals, nil
}

// CreateInsurancePlan adds a travel insurance plan. Admin only.
func (s *DirectoryService) CreateInsurancePlan(ctx context.Context, actor *models.User, plan models.InsurancePlan) (models.InsurancePlan, error) {
	if !actor.IsAdmin() {
		return models.InsurancePlan{}, ErrForbidden
	}
	if err := validatePlan(plan); err != nil {
		return models.InsurancePlan{}, err
	}
	created, err := s.insertPlan(ctx, s.db, plan)
	if err != nil {
		return models.InsurancePlan{}, err
	}
	recordEvent(ctx, s.events, "insurance.create", "info", fmt.Sprintf("Insurance plan from '%s' added.", created.Company), created.ID)
	return created, nil
}

func (s *DirectoryService) insertPlan(ctx context.Context, q execQuerier, p models.InsurancePlan) (models.InsurancePlan, error) {
	p.Company = strings.TrimSpace(p.Company)
	p.CreatedAt = time.Now().UTC()
	err := q.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO insurance_plans (company, premium, medical_expenses, disease_death, age_condition, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`),
		p.Company, p.Premium, p.MedicalExpenses, p.DiseaseDeath, p.AgeCondition, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return models.InsurancePlan{}, storeErr("create insurance plan", err)
	}
	return p, nil
}

// ListInsurancePlans returns every plan ordered by company name.
func (s *DirectoryService) ListInsurancePlans(ctx context.Context) ([]models.InsurancePlan, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+planColumns+" FROM insurance_plans ORDER BY company, id")
	if err != nil {
		return nil, storeErr("list insurance plans", err)
	}
	defer rows.Close()

	plans := []models.InsurancePlan{}
	for rows.Next() {
		var p models.InsurancePlan
		if err := rows.Scan(&p.ID, &p.Company, &p.Premium, &p.MedicalExpenses, &p.DiseaseDeath, &p.AgeCondition, &p.CreatedAt); err != nil {
			return nil, storeErr("scan insurance plan", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list insurance plans", err)
	}
	return plans, nil
}

// Import loads directory fixtures in one transaction. It is an administrative path used by
// the seed command and skips the authorization gate.
func (s *DirectoryService) Import(ctx context.Context, hospitals []models.Hospital, plans []models.InsurancePlan) error {
	for i, h := range hospitals {
		if err := validateHospital(h); err != nil {
			return fmt.Errorf("hospital #%d: %w", i+1, err)
		}
	}
	for i, p := range plans {
		if err := validatePlan(p); err != nil {
			return fmt.Errorf("insurance plan #%d: %w", i+1, err)
		}
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, h := range hospitals {
			if _, err := s.insertHospital(ctx, tx, h); err != nil {
				return err
			}
		}
		for _, p := range plans {
			if _, err := s.insertPlan(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func validateHospital(h models.Hospital) error {
	var v validator
	v.required("name", h.Name)
	v.length("name", h.Name, 0, 120)
	v.length("address", h.Address, 0, 255)
	v.url("url", h.URL)
	return v.err()
}

func validatePlan(p models.InsurancePlan) error {
	var v validator
	v.required("company", p.Company)
	v.required("premium", p.Premium)
	v.required("medicalExpenses", p.MedicalExpenses)
	v.required("diseaseDeath", p.DiseaseDeath)
	v.required("ageCondition", p.AgeCondition)
	return v.err()
}
