package service

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-decision-orchestrator/internal/domain"
)

func newTestPatientService(t *testing.T) *PatientService {
	t.Helper()
	svc, err := NewPatientService(newTestLogger(), "", true)
	require.NoError(t, err)
	return svc
}

func TestGetPatientByRole(t *testing.T) {
	svc := newTestPatientService(t)

	t.Run("physician sees full record", func(t *testing.T) {
		record, err := svc.Get("patient-001", domain.RolePhysician, "dr-lee")
		require.NoError(t, err)
		assert.Equal(t, "patient-001", record.PatientID)
		assert.NotEmpty(t, record.SSN)
	})

	t.Run("nurse sees masked identifiers", func(t *testing.T) {
		record, err := svc.Get("patient-001", domain.RoleNurse, "rn-chen")
		require.NoError(t, err)
		assert.Equal(t, "REDACTED", record.SSN)
		assert.Equal(t, "REDACTED", record.DOB)
	})

	t.Run("researcher gets anonymized record", func(t *testing.T) {
		record, err := svc.Get("patient-001", domain.RoleResearcher, "res-42")
		require.NoError(t, err)
		assert.NotEqual(t, "patient-001", record.PatientID)
		assert.Regexp(t, "^[0-9a-f]{8}$", record.PatientID)
		assert.Equal(t, AnonymizePatientID("patient-001"), record.PatientID, "pseudonym is deterministic")
		assert.Empty(t, record.SSN)
	})

	t.Run("unknown role is forbidden", func(t *testing.T) {
		_, err := svc.Get("patient-001", domain.Role("billing"), "x")
		var forbidden *domain.ForbiddenError
		assert.ErrorAs(t, err, &forbidden)
	})

	t.Run("missing patient", func(t *testing.T) {
		_, err := svc.Get("patient-999", domain.RolePhysician, "dr-lee")
		var notFound *domain.NotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestAnonymizePatientIDDeterministic(t *testing.T) {
	first := AnonymizePatientID("patient-001")
	second := AnonymizePatientID("patient-001")
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, AnonymizePatientID("patient-002"))
}

func TestGetPatientDeepCopy(t *testing.T) {
	svc := newTestPatientService(t)

	first, err := svc.Get("patient-001", domain.RolePhysician, "dr-lee")
	require.NoError(t, err)
	first.DiagnosesICD10[0] = "Z00.0"
	first.Labs["HbA1c"] = "1.0"

	second, err := svc.Get("patient-001", domain.RolePhysician, "dr-lee")
	require.NoError(t, err)
	assert.Equal(t, "E11.9", second.DiagnosesICD10[0])
	assert.Equal(t, "9.2%", second.Labs["HbA1c"])
}

func TestUpdatePatient(t *testing.T) {
	svc := newTestPatientService(t)

	t.Run("valid update", func(t *testing.T) {
		updated, err := svc.Update("patient-002", map[string]interface{}{
			"notes": "started metformin 500mg",
			"age":   36,
		}, domain.RolePhysician, "dr-lee")
		require.NoError(t, err)
		assert.Equal(t, 36, updated.Age)
		assert.WithinDuration(t, time.Now(), updated.LastUpdated, 5*time.Second)
	})

	t.Run("field not allowed", func(t *testing.T) {
		_, err := svc.Update("patient-002", map[string]interface{}{"ssn": "000-00-0000"}, domain.RolePhysician, "dr-lee")
		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("invalid icd10 rejected", func(t *testing.T) {
		_, err := svc.Update("patient-002", map[string]interface{}{
			"diagnoses_icd10": []interface{}{"e11"},
		}, domain.RolePhysician, "dr-lee")
		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("age out of range", func(t *testing.T) {
		_, err := svc.Update("patient-002", map[string]interface{}{"age": 200}, domain.RolePhysician, "dr-lee")
		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("nurse cannot write", func(t *testing.T) {
		_, err := svc.Update("patient-002", map[string]interface{}{"age": 40}, domain.RoleNurse, "rn-chen")
		var forbidden *domain.ForbiddenError
		assert.ErrorAs(t, err, &forbidden)
	})
}

func TestSearchPatients(t *testing.T) {
	svc := newTestPatientService(t)

	t.Run("by diagnosis", func(t *testing.T) {
		hits, _, err := svc.Search(SearchCriteria{Diagnosis: "E11.9"}, 1, 10, domain.RolePhysician, "dr-lee")
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		for i := 1; i < len(hits); i++ {
			assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
		}
	})

	t.Run("multi-criteria scores rank", func(t *testing.T) {
		hits, _, err := svc.Search(SearchCriteria{
			Diagnosis:  "E11.9",
			Medication: "metformin",
		}, 1, 10, domain.RolePhysician, "dr-lee")
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.InDelta(t, 1.0, hits[0].Score, 0.001)
	})

	t.Run("pagination", func(t *testing.T) {
		hits, totalPages, err := svc.Search(SearchCriteria{Gender: "F"}, 1, 1, domain.RolePhysician, "dr-lee")
		require.NoError(t, err)
		assert.Len(t, hits, 1)
		assert.GreaterOrEqual(t, totalPages, 1)
	})
}

func TestAuditLog(t *testing.T) {
	svc := newTestPatientService(t)

	_, err := svc.Get("patient-001", domain.RolePhysician, "dr-lee")
	require.NoError(t, err)
	_, _ = svc.Get("patient-001", domain.Role("billing"), "x")

	entries, err := svc.ListAuditLog(AuditFilter{PatientID: "patient-001"}, domain.RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var sawAccess, sawDenied bool
	for _, entry := range entries {
		switch entry.Action {
		case "record_accessed":
			sawAccess = true
		case "access_denied":
			sawDenied = true
		}
	}
	assert.True(t, sawAccess)
	assert.True(t, sawDenied)
}

func TestAuditLogRequiresPermission(t *testing.T) {
	svc := newTestPatientService(t)

	_, err := svc.ListAuditLog(AuditFilter{}, domain.RoleNurse)
	var forbidden *domain.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
}

func TestPatientFilePersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patients.json")

	records := map[string]*domain.PatientRecord{
		"patient-x": {
			PatientID:      "patient-x",
			Age:            44,
			Gender:         "M",
			DiagnosesICD10: []string{"E11.9"},
			Labs:           map[string]string{"HbA1c": "8.1%"},
			LastUpdated:    time.Now().UTC(),
		},
	}
	data, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	svc, err := NewPatientService(newTestLogger(), path, true)
	require.NoError(t, err)

	record, err := svc.Get("patient-x", domain.RolePhysician, "dr-lee")
	require.NoError(t, err)
	assert.Equal(t, 44, record.Age)
}

func TestValidatePatient(t *testing.T) {
	svc := newTestPatientService(t)

	reports, err := svc.Validate("patient-001", "complete")
	require.NoError(t, err)
	assert.NotEmpty(t, reports)
}
