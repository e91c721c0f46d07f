package services

import (
	"context"
	"testing"

	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryHospitals(t *testing.T) {
	db := newTestDB(t)
	users := newTestUsers(db)
	admin := mustAdmin(t, users)
	member := mustRegister(t, users, "alice", "alice@example.com")
	dir := NewDirectoryService(db, NewEventService(db))
	ctx := context.Background()

	_, err := dir.CreateHospital(ctx, &member, models.Hospital{Name: "St. Luke's"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = dir.CreateHospital(ctx, &admin, models.Hospital{Name: "St. Luke's", Location: "Tokyo", URL: "https://hospital.example.com"})
	require.NoError(t, err)
	_, err = dir.CreateHospital(ctx, &admin, models.Hospital{Name: "Osaka General", Location: "Osaka"})
	require.NoError(t, err)

	all, err := dir.ListHospitals(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	tokyo, err := dir.SearchHospitals(ctx, "Tokyo")
	require.NoError(t, err)
	require.Len(t, tokyo, 1)
	assert.Equal(t, "St. Luke's", tokyo[0].Name)

	none, err := dir.SearchHospitals(ctx, "Kyoto")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = dir.SearchHospitals(ctx, " ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDirectoryInsurancePlans(t *testing.T) {
	db := newTestDB(t)
	admin := mustAdmin(t, newTestUsers(db))
	dir := NewDirectoryService(db, nil)
	ctx := context.Background()

	_, err := dir.CreateInsurancePlan(ctx, &admin, models.InsurancePlan{Company: "Tokio"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "premium")

	for _, company := range []string{"Sompo", "AIG"} {
		_, err := dir.CreateInsurancePlan(ctx, &admin, models.InsurancePlan{
			Company:         company,
			Premium:         "3,000",
			MedicalExpenses: "unlimited",
			DiseaseDeath:    "10,000,000",
			AgeCondition:    "0-69",
		})
		require.NoError(t, err)
	}

	plans, err := dir.ListInsurancePlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "AIG", plans[0].Company)
}

func TestDirectoryImportIsAtomic(t *testing.T) {
	db := newTestDB(t)
	dir := NewDirectoryService(db, nil)
	ctx := context.Background()

	err := dir.Import(ctx, []models.Hospital{{Name: "A"}, {Name: ""}}, nil)
	require.Error(t, err)
	assert.Equal(t, 0, countRows(t, db, "SELECT COUNT(*) FROM hospitals"))

	require.NoError(t, dir.Import(ctx, []models.Hospital{{Name: "A", Location: "Tokyo"}}, []models.InsurancePlan{{
		Company: "AIG", Premium: "1", MedicalExpenses: "1", DiseaseDeath: "1", AgeCondition: "1",
	}}))
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM hospitals"))
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM insurance_plans"))
}

func TestContactSubmit(t *testing.T) {
	db := newTestDB(t)
	notifier := &recordingNotifier{}
	contacts := NewContactService(db, NewEventService(db), notifier)
	ctx := context.Background()

	_, err := contacts.Submit(ctx, ContactInput{Name: "Taro", Email: "bad", Message: ""})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "message")
	assert.Empty(t, notifier.contacts)

	c, err := contacts.Submit(ctx, ContactInput{Name: "Taro", Email: "taro@example.com", Message: "Hello"})
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	require.Len(t, notifier.contacts, 1)
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM contacts"))
}
