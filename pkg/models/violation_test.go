package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleKind_RuleID(t *testing.T) {
	tests := []struct {
		kind RuleKind
		want string
	}{
		{RuleName, "CoN"},
		{RuleTiming, "CoTi"},
		{RuleIdentity, "CoI"},
		{RuleGodObject, "GOD"},
		{RuleDuplicateAlgorithm, "DUP"},
		{NasaRule(4), "NASA-R4"},
		{RuleParseError, "DIAG-PARSE"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.RuleID())
			assert.NotEmpty(t, tt.kind.Title())
			assert.NotEmpty(t, tt.kind.Description())
		})
	}
}

func TestRuleKind_Classification(t *testing.T) {
	assert.Len(t, ConnascenceKinds(), 9)
	assert.Len(t, AllRuleKinds(), 21)

	n, ok := NasaRule(10).NasaNumber()
	require.True(t, ok)
	assert.Equal(t, 10, n)

	_, ok = RuleKind("NasaRule11").NasaNumber()
	assert.False(t, ok)

	assert.True(t, RuleMeaning.IsConnascence())
	assert.False(t, RuleGodObject.IsConnascence())
	assert.True(t, RuleTimeoutAbort.IsDiagnostic())
	assert.False(t, NasaRule(1).IsDiagnostic())
}

func TestLocality_Multiplier(t *testing.T) {
	assert.Equal(t, 1.0, LocalitySameFunction.Multiplier())
	assert.Equal(t, 1.2, LocalitySameClass.Multiplier())
	assert.Equal(t, 1.5, LocalitySameModule.Multiplier())
	assert.Equal(t, 2.0, LocalityCrossModule.Multiplier())
}

func TestNewViolation_CopiesContext(t *testing.T) {
	ctx := map[string]any{"method_count": 16}
	v := NewViolation(RuleGodObject, SeverityHigh, "a.py", Location{Line: 3, Column: 1},
		LocalitySameClass, "too big", "split it", ctx)
	ctx["method_count"] = 99

	n, ok := v.ContextInt("method_count")
	require.True(t, ok)
	assert.Equal(t, 16, n)
	assert.Equal(t, "GOD", v.RuleID)
	assert.InDelta(t, 3.6, v.Weight(DefaultSeverityWeights()), 1e-9)
}

func TestNewViolation_ClampsLocation(t *testing.T) {
	v := NewViolation(RuleName, SeverityLow, "a.py", Location{}, LocalitySameModule, "d", "r", nil)
	assert.Equal(t, 1, v.Line)
	assert.Equal(t, 1, v.Column)
	assert.Nil(t, v.Context)
}

func TestAssignIDs_Deterministic(t *testing.T) {
	mk := func(desc string) Violation {
		return NewViolation(RuleMeaning, SeverityMedium, "a.py", Location{Line: 2, Column: 5},
			LocalitySameFunction, desc, "r", nil)
	}
	first := AssignIDs([]Violation{mk("x"), mk("y")})
	second := AssignIDs([]Violation{mk("y"), mk("x")})

	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first[0].ID, first[1].ID)
	assert.Equal(t, ViolationID("a.py", "CoM", 2, 5, 0), first[0].ID)
	assert.Len(t, first[0].ID, 16)
}

func TestMerge_DedupesByIDOnly(t *testing.T) {
	a := AssignIDs([]Violation{
		NewViolation(RuleName, SeverityLow, "a.py", Location{Line: 1}, LocalitySameModule, "d", "r", nil),
	})
	b := AssignIDs([]Violation{
		NewViolation(RuleName, SeverityLow, "a.py", Location{Line: 1}, LocalitySameModule, "d", "r", nil),
		NewViolation(RuleName, SeverityLow, "b.py", Location{Line: 1}, LocalitySameModule, "d", "r", nil),
	})
	noID := NewViolation(RuleType, SeverityLow, "c.py", Location{Line: 1}, LocalitySameModule, "d", "r", nil)

	merged := Merge(a, append(b, noID, noID))
	assert.Len(t, merged, 4)
}

func TestSortCanonical(t *testing.T) {
	vs := []Violation{
		{FilePath: "b.py", Line: 1, Column: 1, RuleKind: RuleName, ID: "1"},
		{FilePath: "a.py", Line: 9, Column: 1, RuleKind: RuleName, ID: "2"},
		{FilePath: "a.py", Line: 2, Column: 8, RuleKind: RuleName, ID: "3"},
		{FilePath: "a.py", Line: 2, Column: 3, RuleKind: RulePosition, ID: "4"},
		{FilePath: "a.py", Line: 2, Column: 3, RuleKind: RuleMeaning, ID: "5"},
	}
	SortCanonical(vs)

	var ids []string
	for _, v := range vs {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []string{"5", "4", "3", "2", "1"}, ids)
	assert.True(t, IsCanonical(vs))
}

func TestTopN(t *testing.T) {
	vs := []Violation{
		{FilePath: "a.py", Line: 1, Severity: SeverityLow},
		{FilePath: "a.py", Line: 2, Severity: SeverityCritical},
		{FilePath: "a.py", Line: 3, Severity: SeverityMedium},
	}
	top := TopN(vs, 2)
	require.Len(t, top, 2)
	assert.Equal(t, SeverityCritical, top[0].Severity)
	assert.Equal(t, SeverityMedium, top[1].Severity)
	assert.Len(t, TopN(vs, 10), 3)
}
