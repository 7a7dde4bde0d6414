package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInteractionSeverityOrdering(t *testing.T) {
	assert.True(t, InteractionContraindicated > InteractionMajor)
	assert.True(t, InteractionMajor > InteractionModerate)
	assert.True(t, InteractionModerate > InteractionMinor)
	assert.True(t, InteractionMinor > InteractionUnknown)
	assert.True(t, InteractionUnknown > InteractionNone)
}

func TestParseInteractionSeverity(t *testing.T) {
	tests := []struct {
		input string
		want  InteractionSeverity
	}{
		{"contraindicated", InteractionContraindicated},
		{"MAJOR", InteractionMajor},
		{" moderate ", InteractionModerate},
		{"minor", InteractionMinor},
		{"none", InteractionNone},
		{"garbage", InteractionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInteractionSeverity(tt.input))
		})
	}
}

func TestCoverageStatusOrdering(t *testing.T) {
	assert.True(t, Covered > CoveredWithPA)
	assert.True(t, CoveredWithPA > CoveredWithRestrictions)
	assert.True(t, CoveredWithRestrictions > NonPreferred)
	assert.True(t, NonPreferred > NotOnFormulary)
	assert.True(t, NotOnFormulary > NotCovered)
	assert.True(t, NotCovered > Excluded)
}

func TestCoverageStatusRequiresPriorAuth(t *testing.T) {
	assert.True(t, CoveredWithPA.RequiresPriorAuth())
	assert.True(t, CoveredWithRestrictions.RequiresPriorAuth())
	assert.False(t, Covered.RequiresPriorAuth())
	assert.False(t, Excluded.RequiresPriorAuth())
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		input  string
		want   Decision
		wantOK bool
	}{
		{"Approve", DecisionApprove, true},
		{"APPROVED", DecisionApprove, true},
		{"deny", DecisionDeny, true},
		{"Pend for More Info", DecisionPend, true},
		{"pend", DecisionPend, true},
		{"maybe", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDecision(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRolePermissions(t *testing.T) {
	assert.True(t, RolePhysician.HasPermission(PermWrite))
	assert.False(t, RoleNurse.HasPermission(PermWrite))
	assert.True(t, RoleNurse.HasPermission(PermSearch))
	assert.True(t, RoleAdmin.HasPermission(PermExport))
	assert.True(t, RoleSystem.HasPermission(PermAudit))
	assert.False(t, RoleResearcher.HasPermission(PermWrite))
	assert.False(t, Role("intruder").HasPermission(PermRead))
}

func TestBandConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, BandConfidence(0.91))
	assert.Equal(t, ConfidenceHigh, BandConfidence(0.8))
	assert.Equal(t, ConfidenceMedium, BandConfidence(0.7))
	assert.Equal(t, ConfidenceLow, BandConfidence(0.3))
}

func TestValidICD10(t *testing.T) {
	valid := []string{"E11", "E11.9", "I50", "Z99.89"}
	for _, code := range valid {
		assert.True(t, ValidICD10(code), "expected %s to be valid", code)
	}

	invalid := []string{"U07.1", "e11", "E1", "E11.", "E11.ABCDE"}
	for _, code := range invalid {
		assert.False(t, ValidICD10(code), "expected %s to be invalid", code)
	}
}
