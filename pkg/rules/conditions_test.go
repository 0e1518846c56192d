package rules

import (
	"testing"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionValidate(t *testing.T) {
	tests := []struct {
		name      string
		cond      Condition
		wantValue string
		wantErr   bool
	}{
		{name: "source equals", cond: Condition{Field: FieldSource, Operator: OpEquals, Value: " Website "}, wantValue: "Website"},
		{name: "source not equals", cond: Condition{Field: FieldSource, Operator: OpNotEquals, Value: "Referral"}, wantValue: "Referral"},
		{name: "source contains", cond: Condition{Field: FieldSource, Operator: OpContains, Value: "web"}, wantValue: "web"},
		{name: "source needs a value", cond: Condition{Field: FieldSource, Operator: OpEquals}, wantErr: true},
		{name: "score is normalized", cond: Condition{Field: FieldLeadScore, Operator: OpEquals, Value: "hot"}, wantValue: "HOT"},
		{name: "unknown score", cond: Condition{Field: FieldLeadScore, Operator: OpEquals, Value: "LUKEWARM"}, wantErr: true},
		{name: "score does not support contains", cond: Condition{Field: FieldLeadScore, Operator: OpContains, Value: "H"}, wantErr: true},
		{name: "created today drops value", cond: Condition{Field: FieldCreatedAt, Operator: OpToday, Value: "ignored"}, wantValue: ""},
		{name: "created this week", cond: Condition{Field: FieldCreatedAt, Operator: OpThisWeek}},
		{name: "created equals is not enumerated", cond: Condition{Field: FieldCreatedAt, Operator: OpEquals, Value: "2024-01-01"}, wantErr: true},
		{name: "unknown field", cond: Condition{Field: "email", Operator: OpEquals, Value: "a@b.co"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Validate()
			if tt.wantErr {
				assert.True(t, domain.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, got.Value)
		})
	}
}

func TestParseConditions(t *testing.T) {
	conds, err := ParseConditions(`[{"field":"source","operator":"equals","value":"Website"}]`)
	require.NoError(t, err)
	assert.Equal(t, []Condition{{Field: FieldSource, Operator: OpEquals, Value: "Website"}}, conds)

	conds, err = ParseConditions("")
	require.NoError(t, err)
	assert.Empty(t, conds)

	conds, err = ParseConditions("null")
	require.NoError(t, err)
	assert.NotNil(t, conds)

	_, err = ParseConditions("source = 'Website'")
	assert.True(t, domain.IsValidation(err))
}

func TestCompile_RejectsInvalidCondition(t *testing.T) {
	_, err := Compile([]Condition{
		{Field: FieldSource, Operator: OpEquals, Value: "Website"},
		{Field: FieldSource, Operator: OpToday},
	}, time.Now())
	require.Error(t, err)
	assert.Contains(t, domain.GetErrorMessage(err), "condition 2")
}

func TestStartOfWeek(t *testing.T) {
	tests := []struct {
		day  string
		want string
	}{
		{"2024-03-11", "2024-03-11"}, // Monday
		{"2024-03-13", "2024-03-11"},
		{"2024-03-17", "2024-03-11"}, // Sunday
	}
	for _, tt := range tests {
		day, _ := time.Parse("2006-01-02", tt.day)
		assert.Equal(t, tt.want, startOfWeek(day).Format("2006-01-02"), tt.day)
	}
}
