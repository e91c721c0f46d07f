package models

import "time"

// Hospital is an entry of the hospital directory.
type Hospital struct {
	ID          int64     `json:"id" yaml:"-"`
	Name        string    `json:"name" yaml:"name"`
	Address     string    `json:"address" yaml:"address"`
	Phone       string    `json:"phone" yaml:"phone"`
	URL         string    `json:"url" yaml:"url"`
	Description string    `json:"description" yaml:"description"`
	Location    string    `json:"location" yaml:"location"`
	CreatedAt   time.Time `json:"createdAt" yaml:"-"`
}

// InsurancePlan is an entry of the travel insurance directory.
type InsurancePlan struct {
	ID              int64     `json:"id" yaml:"-"`
	Company         string    `json:"company" yaml:"company"`
	Premium         string    `json:"premium" yaml:"premium"`
	MedicalExpenses string    `json:"medicalExpenses" yaml:"medical_expenses"`
	DiseaseDeath    string    `json:"diseaseDeath" yaml:"disease_death"`
	AgeCondition    string    `json:"ageCondition" yaml:"age_condition"`
	CreatedAt       time.Time `json:"createdAt" yaml:"-"`
}
