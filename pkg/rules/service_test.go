package rules

import (
	"context"
	"testing"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/database/dbtest"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leadassignment"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday afternoon.
var fixedNow = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*database.Client, *Service) {
	t.Helper()
	db := dbtest.Open(t)
	svc := NewService(db, leadassignment.NewService(db))
	svc.now = func() time.Time { return fixedNow }
	return db, svc
}

func createTestUser(t *testing.T, db *database.Client, name string) int {
	t.Helper()
	u := testdata.GenerateUser(models.RoleTeam)
	u.Name = name
	id, err := testdata.InsertUser(context.Background(), db, u)
	require.NoError(t, err)
	return id
}

func createTestLead(t *testing.T, db *database.Client, lead models.Lead) int {
	t.Helper()
	id, err := testdata.InsertLead(context.Background(), db, lead)
	require.NoError(t, err)
	return id
}

func sourceRule(name, source string, method leadassignment.Method) CreateRuleRequest {
	return CreateRuleRequest{
		Name:             name,
		RuleType:         TypeSource,
		Conditions:       []Condition{{Field: FieldSource, Operator: OpEquals, Value: source}},
		AssignmentMethod: method,
		IsActive:         true,
	}
}

func TestTestConditions_SourceEqualsWebsite(t *testing.T) {
	db, svc := setupTestDB(t)
	ctx := context.Background()

	owner := createTestUser(t, db, "Owner")
	cfg := testdata.DefaultLeadConfig(60)
	cfg.Sources = []string{"Website", "Referral", "website", "Website Form"}
	generated := testdata.GenerateLeads(cfg)

	websiteCount := 0
	for i, lead := range generated {
		if i%3 == 0 {
			lead.AssignedTo = &owner
		}
		if lead.Source == "Website" {
			websiteCount++
		}
		createTestLead(t, db, lead)
	}
	require.Positive(t, websiteCount)

	result, err := svc.TestConditions(ctx, []Condition{{Field: FieldSource, Operator: OpEquals, Value: "Website"}})
	require.NoError(t, err)

	assert.Equal(t, websiteCount, result.MatchingLeads)
	assert.LessOrEqual(t, result.UnassignedLeads, result.MatchingLeads)
}

func TestTestConditions_Operators(t *testing.T) {
	db, svc := setupTestDB(t)
	ctx := context.Background()

	user := createTestUser(t, db, "Owner")
	createTestLead(t, db, models.Lead{Name: "Today hot", Source: "Website", LeadScore: models.ScoreHot, CreatedAt: fixedNow.Add(-2 * time.Hour)})
	createTestLead(t, db, models.Lead{Name: "Monday warm", Source: "Website Form", LeadScore: models.ScoreWarm, CreatedAt: fixedNow.AddDate(0, 0, -2), AssignedTo: &user})
	createTestLead(t, db, models.Lead{Name: "Last week hot", Source: "Referral", LeadScore: models.ScoreHot, CreatedAt: fixedNow.AddDate(0, 0, -8)})

	tests := []struct {
		name       string
		conds      []Condition
		matching   int
		unassigned int
	}{
		{name: "no conditions match everything", conds: nil, matching: 3, unassigned: 2},
		{name: "source contains is case-insensitive", conds: []Condition{{Field: FieldSource, Operator: OpContains, Value: "WEB"}}, matching: 2, unassigned: 1},
		{name: "source not equals", conds: []Condition{{Field: FieldSource, Operator: OpNotEquals, Value: "Website"}}, matching: 2, unassigned: 1},
		{name: "score equals", conds: []Condition{{Field: FieldLeadScore, Operator: OpEquals, Value: "HOT"}}, matching: 2, unassigned: 2},
		{name: "score not equals", conds: []Condition{{Field: FieldLeadScore, Operator: OpNotEquals, Value: "hot"}}, matching: 1, unassigned: 0},
		{name: "created today", conds: []Condition{{Field: FieldCreatedAt, Operator: OpToday}}, matching: 1, unassigned: 1},
		{name: "created this week", conds: []Condition{{Field: FieldCreatedAt, Operator: OpThisWeek}}, matching: 2, unassigned: 1},
		{
			name: "conditions are ANDed",
			conds: []Condition{
				{Field: FieldLeadScore, Operator: OpEquals, Value: "HOT"},
				{Field: FieldCreatedAt, Operator: OpThisWeek},
			},
			matching: 1, unassigned: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.TestConditions(ctx, tt.conds)
			require.NoError(t, err)
			assert.Equal(t, tt.matching, result.MatchingLeads)
			assert.Equal(t, tt.unassigned, result.UnassignedLeads)
		})
	}

	t.Run("invalid condition", func(t *testing.T) {
		_, err := svc.TestConditions(ctx, []Condition{{Field: FieldSource, Operator: "starts_with", Value: "W"}})
		assert.True(t, domain.IsValidation(err))
	})
}

func TestRuleCRUD(t *testing.T) {
	db, svc := setupTestDB(t)
	ctx := context.Background()

	admin := createTestUser(t, db, "Admin")
	target := createTestUser(t, db, "Target")

	t.Run("Success - create specific user rule", func(t *testing.T) {
		req := sourceRule("Website to Target", "Website", leadassignment.MethodSpecificUser)
		req.TargetUserID = &target
		req.Priority = 10

		rule, err := svc.Create(ctx, req, admin)
		require.NoError(t, err)
		assert.Equal(t, "Website to Target", rule.Name)
		assert.Equal(t, TypeSource, rule.RuleType)
		require.NotNil(t, rule.TargetUserID)
		assert.Equal(t, target, *rule.TargetUserID)
		assert.Equal(t, "Target", rule.TargetUserName)
		assert.Equal(t, req.Conditions, rule.Conditions)
		assert.True(t, rule.IsActive)
		require.NotNil(t, rule.CreatedBy)
		assert.Equal(t, admin, *rule.CreatedBy)
	})

	t.Run("Error - specific user without target", func(t *testing.T) {
		_, err := svc.Create(ctx, sourceRule("No target", "Website", leadassignment.MethodSpecificUser), admin)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Error - invalid rule type", func(t *testing.T) {
		req := sourceRule("Bad type", "Website", leadassignment.MethodRoundRobin)
		req.RuleType = "geo"
		_, err := svc.Create(ctx, req, admin)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Error - missing name", func(t *testing.T) {
		_, err := svc.Create(ctx, sourceRule("  ", "Website", leadassignment.MethodRoundRobin), admin)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Error - unsupported condition", func(t *testing.T) {
		req := sourceRule("Bad condition", "Website", leadassignment.MethodRoundRobin)
		req.Conditions = append(req.Conditions, Condition{Field: FieldLeadScore, Operator: OpToday})
		_, err := svc.Create(ctx, req, admin)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("List orders by priority", func(t *testing.T) {
		_, err := svc.Create(ctx, sourceRule("Low", "Referral", leadassignment.MethodRoundRobin), admin)
		require.NoError(t, err)
		inactive := sourceRule("Off", "Ads", leadassignment.MethodRandom)
		inactive.IsActive = false
		_, err = svc.Create(ctx, inactive, admin)
		require.NoError(t, err)

		all, err := svc.List(ctx, false)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "Website to Target", all[0].Name)

		active, err := svc.List(ctx, true)
		require.NoError(t, err)
		assert.Len(t, active, 2)
	})

	t.Run("Update switches method and clears target", func(t *testing.T) {
		rules, err := svc.List(ctx, false)
		require.NoError(t, err)
		id := rules[0].ID

		method := leadassignment.MethodLeastLeads
		name := "Website balanced"
		conds := []Condition{{Field: FieldLeadScore, Operator: OpEquals, Value: "warm"}}
		rule, err := svc.Update(ctx, id, UpdateRuleRequest{Name: &name, AssignmentMethod: &method, Conditions: &conds})
		require.NoError(t, err)
		assert.Equal(t, name, rule.Name)
		assert.Equal(t, leadassignment.MethodLeastLeads, rule.AssignmentMethod)
		assert.Nil(t, rule.TargetUserID)
		assert.Equal(t, "WARM", rule.Conditions[0].Value)
	})

	t.Run("Update missing rule", func(t *testing.T) {
		name := "x"
		_, err := svc.Update(ctx, 9999, UpdateRuleRequest{Name: &name})
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("Toggle flips state", func(t *testing.T) {
		rules, err := svc.List(ctx, false)
		require.NoError(t, err)
		id := rules[0].ID

		rule, err := svc.Toggle(ctx, id)
		require.NoError(t, err)
		assert.False(t, rule.IsActive)

		rule, err = svc.Toggle(ctx, id)
		require.NoError(t, err)
		assert.True(t, rule.IsActive)
	})

	t.Run("Delete is terminal", func(t *testing.T) {
		rules, err := svc.List(ctx, false)
		require.NoError(t, err)
		id := rules[len(rules)-1].ID

		require.NoError(t, svc.Delete(ctx, id))
		_, err = svc.Get(ctx, id)
		assert.True(t, domain.IsNotFound(err))
		assert.True(t, domain.IsNotFound(svc.Delete(ctx, id)))
		_, err = svc.SetActive(ctx, id, true)
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("round robin continues from the stored cursor", func(t *testing.T) {
		db, svc := setupTestDB(t)
		a := createTestUser(t, db, "A")
		b := createTestUser(t, db, "B")
		admin := createTestUser(t, db, "Admin")

		var web []int
		for i := 0; i < 4; i++ {
			web = append(web, createTestLead(t, db, models.Lead{Name: "Web", Source: "Website", CreatedAt: fixedNow.Add(time.Duration(i) * time.Minute)}))
		}
		assigned := createTestLead(t, db, models.Lead{Name: "Taken", Source: "Website", AssignedTo: &a})
		other := createTestLead(t, db, models.Lead{Name: "Other", Source: "Referral"})

		rule, err := svc.Create(ctx, sourceRule("Web RR", "Website", leadassignment.MethodRoundRobin), admin)
		require.NoError(t, err)

		result, err := svc.Apply(ctx, rule.ID, admin)
		require.NoError(t, err)
		assert.Equal(t, 4, result.Matched)
		assert.Equal(t, 4, result.Assigned)
		// active team members are A, B and Admin (all role team)
		wantUsers := []int{a, b, admin, a}
		for i, as := range result.Assignments {
			assert.Equal(t, web[i], as.LeadID)
			assert.Equal(t, wantUsers[i], as.UserID)
		}

		lead, err := leads.Load(ctx, db, db.DB, assigned)
		require.NoError(t, err)
		assert.Equal(t, a, *lead.AssignedTo, "already assigned leads are untouched")
		lead, err = leads.Load(ctx, db, db.DB, other)
		require.NoError(t, err)
		assert.Nil(t, lead.AssignedTo)

		rule, err = svc.Get(ctx, rule.ID)
		require.NoError(t, err)
		require.NotNil(t, rule.LastAssignedUserID)
		assert.Equal(t, a, *rule.LastAssignedUserID)

		history, err := activity.NewService(db).List(ctx, activity.Filter{LeadID: web[0]})
		require.NoError(t, err)
		types := map[string]bool{}
		for _, h := range history {
			types[h.ActivityType] = true
		}
		assert.True(t, types[activity.TypeAssigned])
		assert.True(t, types[activity.TypeRuleApplied])

		createTestLead(t, db, models.Lead{Name: "Late", Source: "Website"})
		result, err = svc.Apply(ctx, rule.ID, admin)
		require.NoError(t, err)
		require.Len(t, result.Assignments, 1)
		assert.Equal(t, b, result.Assignments[0].UserID)
	})

	t.Run("nothing to assign", func(t *testing.T) {
		db, svc := setupTestDB(t)
		admin := createTestUser(t, db, "Admin")
		rule, err := svc.Create(ctx, sourceRule("Empty", "Website", leadassignment.MethodLeastLeads), admin)
		require.NoError(t, err)

		result, err := svc.Apply(ctx, rule.ID, admin)
		require.NoError(t, err)
		assert.Zero(t, result.Assigned)
		assert.Empty(t, result.Assignments)
	})

	t.Run("inactive rules are refused", func(t *testing.T) {
		db, svc := setupTestDB(t)
		admin := createTestUser(t, db, "Admin")
		leadID := createTestLead(t, db, models.Lead{Name: "Web", Source: "Website"})
		req := sourceRule("Off", "Website", leadassignment.MethodRandom)
		req.IsActive = false
		rule, err := svc.Create(ctx, req, admin)
		require.NoError(t, err)

		_, err = svc.Apply(ctx, rule.ID, admin)
		assert.True(t, domain.IsValidation(err))

		lead, err := leads.Load(ctx, db, db.DB, leadID)
		require.NoError(t, err)
		assert.Nil(t, lead.AssignedTo)
	})

	t.Run("inactive target rolls back", func(t *testing.T) {
		db, svc := setupTestDB(t)
		admin := createTestUser(t, db, "Admin")
		target := createTestUser(t, db, "Target")
		leadID := createTestLead(t, db, models.Lead{Name: "Web", Source: "Website"})

		req := sourceRule("Specific", "Website", leadassignment.MethodSpecificUser)
		req.TargetUserID = &target
		rule, err := svc.Create(ctx, req, admin)
		require.NoError(t, err)

		upd := db.Builder().Update("users").Set("status", string(models.UserInactive))
		_, err = database.Exec(ctx, db.DB, upd)
		require.NoError(t, err)

		_, err = svc.Apply(ctx, rule.ID, admin)
		assert.True(t, domain.IsValidation(err))

		lead, err := leads.Load(ctx, db, db.DB, leadID)
		require.NoError(t, err)
		assert.Nil(t, lead.AssignedTo)
	})

	t.Run("missing rule", func(t *testing.T) {
		_, svc := setupTestDB(t)
		_, err := svc.Apply(ctx, 12345, 0)
		assert.True(t, domain.IsNotFound(err))
	})
}
