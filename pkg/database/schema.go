package database

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// textSize makes string columns map to TEXT.
const textSize = 2147483647

var (
	usersID     = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	usersEmail  = &schema.Column{Name: "email", Type: field.TypeString, Unique: true}
	usersRole   = &schema.Column{Name: "role", Type: field.TypeEnum, Enums: []string{"admin", "team"}, Default: "team"}
	usersStatus = &schema.Column{Name: "status", Type: field.TypeEnum, Enums: []string{"active", "inactive"}, Default: "active"}
	// UsersColumns holds the columns for the "users" table.
	UsersColumns = []*schema.Column{
		usersID,
		{Name: "name", Type: field.TypeString},
		usersEmail,
		{Name: "phone", Type: field.TypeString, Default: ""},
		{Name: "password_hash", Type: field.TypeString},
		usersRole,
		usersStatus,
		{Name: "level", Type: field.TypeInt, Default: 1},
		{Name: "referral_token", Type: field.TypeString, Unique: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// UsersTable holds the schema information for the "users" table.
	UsersTable = &schema.Table{
		Name:       "users",
		Columns:    UsersColumns,
		PrimaryKey: []*schema.Column{usersID},
		Indexes: []*schema.Index{
			{Name: "users_role_status", Columns: []*schema.Column{usersRole, usersStatus}},
		},
	}

	leadsID         = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	leadsEmail      = &schema.Column{Name: "email", Type: field.TypeString, Default: ""}
	leadsPhone      = &schema.Column{Name: "phone", Type: field.TypeString, Default: ""}
	leadsSource     = &schema.Column{Name: "source", Type: field.TypeString, Default: ""}
	leadsScore      = &schema.Column{Name: "lead_score", Type: field.TypeEnum, Enums: []string{"HOT", "WARM", "COLD"}, Default: "COLD"}
	leadsStatus     = &schema.Column{Name: "status", Type: field.TypeEnum, Enums: []string{"active", "converted", "lost", "follow_up"}, Default: "active"}
	leadsAssignedTo = &schema.Column{Name: "assigned_to", Type: field.TypeInt, Nullable: true}
	leadsFollowUp   = &schema.Column{Name: "follow_up_date", Type: field.TypeTime, Nullable: true}
	leadsCreatedAt  = &schema.Column{Name: "created_at", Type: field.TypeTime}
	// LeadsColumns holds the columns for the "leads" table.
	LeadsColumns = []*schema.Column{
		leadsID,
		{Name: "name", Type: field.TypeString},
		leadsEmail,
		leadsPhone,
		leadsSource,
		leadsScore,
		leadsStatus,
		leadsAssignedTo,
		{Name: "referral_code", Type: field.TypeString, Default: ""},
		leadsFollowUp,
		{Name: "notes", Type: field.TypeString, Size: textSize, Default: ""},
		leadsCreatedAt,
		{Name: "updated_at", Type: field.TypeTime},
	}
	// LeadsTable holds the schema information for the "leads" table.
	LeadsTable = &schema.Table{
		Name:       "leads",
		Columns:    LeadsColumns,
		PrimaryKey: []*schema.Column{leadsID},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "leads_users_assigned_leads",
				Columns:    []*schema.Column{leadsAssignedTo},
				RefColumns: []*schema.Column{usersID},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{Name: "leads_email", Columns: []*schema.Column{leadsEmail}},
			{Name: "leads_phone", Columns: []*schema.Column{leadsPhone}},
			{Name: "leads_source", Columns: []*schema.Column{leadsSource}},
			{Name: "leads_status_score", Columns: []*schema.Column{leadsStatus, leadsScore}},
			{Name: "leads_assigned_to", Columns: []*schema.Column{leadsAssignedTo}},
			{Name: "leads_follow_up_date", Columns: []*schema.Column{leadsFollowUp}},
			{Name: "leads_created_at", Columns: []*schema.Column{leadsCreatedAt}},
		},
	}

	activitiesID        = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	activitiesLeadID    = &schema.Column{Name: "lead_id", Type: field.TypeInt}
	activitiesUserID    = &schema.Column{Name: "user_id", Type: field.TypeInt, Nullable: true}
	activitiesType      = &schema.Column{Name: "activity_type", Type: field.TypeString}
	activitiesCreatedAt = &schema.Column{Name: "created_at", Type: field.TypeTime}
	// LeadActivitiesColumns holds the columns for the "lead_activities" table.
	LeadActivitiesColumns = []*schema.Column{
		activitiesID,
		activitiesLeadID,
		activitiesUserID,
		activitiesType,
		{Name: "description", Type: field.TypeString, Size: textSize, Default: ""},
		activitiesCreatedAt,
	}
	// LeadActivitiesTable holds the schema information for the "lead_activities" table.
	LeadActivitiesTable = &schema.Table{
		Name:       "lead_activities",
		Columns:    LeadActivitiesColumns,
		PrimaryKey: []*schema.Column{activitiesID},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "lead_activities_leads_activities",
				Columns:    []*schema.Column{activitiesLeadID},
				RefColumns: []*schema.Column{leadsID},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "lead_activities_users_activities",
				Columns:    []*schema.Column{activitiesUserID},
				RefColumns: []*schema.Column{usersID},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{Name: "lead_activities_lead_id", Columns: []*schema.Column{activitiesLeadID}},
			{Name: "lead_activities_activity_type", Columns: []*schema.Column{activitiesType}},
			{Name: "lead_activities_created_at", Columns: []*schema.Column{activitiesCreatedAt}},
		},
	}

	categoriesID = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	// LeadCategoriesColumns holds the columns for the "lead_categories" table.
	LeadCategoriesColumns = []*schema.Column{
		categoriesID,
		{Name: "name", Type: field.TypeString, Unique: true},
		{Name: "color", Type: field.TypeString, Default: "#6c757d"},
		{Name: "description", Type: field.TypeString, Size: textSize, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
	}
	// LeadCategoriesTable holds the schema information for the "lead_categories" table.
	LeadCategoriesTable = &schema.Table{
		Name:       "lead_categories",
		Columns:    LeadCategoriesColumns,
		PrimaryKey: []*schema.Column{categoriesID},
	}

	categoryAssignmentsID         = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	categoryAssignmentsLeadID     = &schema.Column{Name: "lead_id", Type: field.TypeInt}
	categoryAssignmentsCategoryID = &schema.Column{Name: "category_id", Type: field.TypeInt}
	// LeadCategoryAssignmentsColumns holds the columns for the "lead_category_assignments" table.
	LeadCategoryAssignmentsColumns = []*schema.Column{
		categoryAssignmentsID,
		categoryAssignmentsLeadID,
		categoryAssignmentsCategoryID,
		{Name: "assigned_at", Type: field.TypeTime},
	}
	// LeadCategoryAssignmentsTable holds the schema information for the "lead_category_assignments" table.
	LeadCategoryAssignmentsTable = &schema.Table{
		Name:       "lead_category_assignments",
		Columns:    LeadCategoryAssignmentsColumns,
		PrimaryKey: []*schema.Column{categoryAssignmentsID},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "lead_category_assignments_leads",
				Columns:    []*schema.Column{categoryAssignmentsLeadID},
				RefColumns: []*schema.Column{leadsID},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "lead_category_assignments_categories",
				Columns:    []*schema.Column{categoryAssignmentsCategoryID},
				RefColumns: []*schema.Column{categoriesID},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "lead_category_assignments_lead_category", Unique: true, Columns: []*schema.Column{categoryAssignmentsLeadID, categoryAssignmentsCategoryID}},
		},
	}

	rulesID           = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	rulesTargetUserID = &schema.Column{Name: "target_user_id", Type: field.TypeInt, Nullable: true}
	rulesIsActive     = &schema.Column{Name: "is_active", Type: field.TypeBool, Default: true}
	rulesPriority     = &schema.Column{Name: "priority", Type: field.TypeInt, Default: 0}
	// AssignmentRulesColumns holds the columns for the "assignment_rules" table.
	AssignmentRulesColumns = []*schema.Column{
		rulesID,
		{Name: "name", Type: field.TypeString},
		{Name: "rule_type", Type: field.TypeEnum, Enums: []string{"source", "location", "time_based", "workload", "expertise"}},
		{Name: "conditions", Type: field.TypeString, Size: textSize, Default: "[]"},
		{Name: "assignment_method", Type: field.TypeEnum, Enums: []string{"specific_user", "round_robin", "least_leads", "random"}},
		rulesTargetUserID,
		{Name: "last_assigned_user_id", Type: field.TypeInt, Nullable: true},
		rulesPriority,
		rulesIsActive,
		{Name: "created_by", Type: field.TypeInt, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// AssignmentRulesTable holds the schema information for the "assignment_rules" table.
	AssignmentRulesTable = &schema.Table{
		Name:       "assignment_rules",
		Columns:    AssignmentRulesColumns,
		PrimaryKey: []*schema.Column{rulesID},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "assignment_rules_users_target",
				Columns:    []*schema.Column{rulesTargetUserID},
				RefColumns: []*schema.Column{usersID},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{Name: "assignment_rules_active_priority", Columns: []*schema.Column{rulesIsActive, rulesPriority}},
		},
	}

	messagesID          = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	messagesSenderID    = &schema.Column{Name: "sender_id", Type: field.TypeInt, Nullable: true}
	messagesRecipientID = &schema.Column{Name: "recipient_id", Type: field.TypeInt}
	messagesIsRead      = &schema.Column{Name: "is_read", Type: field.TypeBool, Default: false}
	// TeamMessagesColumns holds the columns for the "team_messages" table.
	TeamMessagesColumns = []*schema.Column{
		messagesID,
		messagesSenderID,
		messagesRecipientID,
		{Name: "subject", Type: field.TypeString},
		{Name: "body", Type: field.TypeString, Size: textSize},
		{Name: "is_urgent", Type: field.TypeBool, Default: false},
		messagesIsRead,
		{Name: "read_at", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	// TeamMessagesTable holds the schema information for the "team_messages" table.
	TeamMessagesTable = &schema.Table{
		Name:       "team_messages",
		Columns:    TeamMessagesColumns,
		PrimaryKey: []*schema.Column{messagesID},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "team_messages_users_sent",
				Columns:    []*schema.Column{messagesSenderID},
				RefColumns: []*schema.Column{usersID},
				OnDelete:   schema.SetNull,
			},
			{
				Symbol:     "team_messages_users_received",
				Columns:    []*schema.Column{messagesRecipientID},
				RefColumns: []*schema.Column{usersID},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "team_messages_recipient_read", Columns: []*schema.Column{messagesRecipientID, messagesIsRead}},
		},
	}

	announcementsID       = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	announcementsAuthorID = &schema.Column{Name: "author_id", Type: field.TypeInt, Nullable: true}
	// TeamAnnouncementsColumns holds the columns for the "team_announcements" table.
	TeamAnnouncementsColumns = []*schema.Column{
		announcementsID,
		announcementsAuthorID,
		{Name: "title", Type: field.TypeString},
		{Name: "body", Type: field.TypeString, Size: textSize},
		{Name: "priority", Type: field.TypeEnum, Enums: []string{"low", "normal", "high"}, Default: "normal"},
		{Name: "expires_at", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	// TeamAnnouncementsTable holds the schema information for the "team_announcements" table.
	TeamAnnouncementsTable = &schema.Table{
		Name:       "team_announcements",
		Columns:    TeamAnnouncementsColumns,
		PrimaryKey: []*schema.Column{announcementsID},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "team_announcements_users_author",
				Columns:    []*schema.Column{announcementsAuthorID},
				RefColumns: []*schema.Column{usersID},
				OnDelete:   schema.SetNull,
			},
		},
	}

	landingID     = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	landingUserID = &schema.Column{Name: "user_id", Type: field.TypeInt, Nullable: true}
	// LandingPagesColumns holds the columns for the "landing_pages" table.
	LandingPagesColumns = []*schema.Column{
		landingID,
		landingUserID,
		{Name: "slug", Type: field.TypeString, Unique: true},
		{Name: "title", Type: field.TypeString},
		{Name: "headline", Type: field.TypeString, Default: ""},
		{Name: "description", Type: field.TypeString, Size: textSize, Default: ""},
		{Name: "video_url", Type: field.TypeString, Default: ""},
		{Name: "is_active", Type: field.TypeBool, Default: true},
		{Name: "views", Type: field.TypeInt, Default: 0},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// LandingPagesTable holds the schema information for the "landing_pages" table.
	LandingPagesTable = &schema.Table{
		Name:       "landing_pages",
		Columns:    LandingPagesColumns,
		PrimaryKey: []*schema.Column{landingID},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "landing_pages_users_owner",
				Columns:    []*schema.Column{landingUserID},
				RefColumns: []*schema.Column{usersID},
				OnDelete:   schema.SetNull,
			},
		},
	}

	certificatesID     = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	certificatesUserID = &schema.Column{Name: "user_id", Type: field.TypeInt}
	// CertificatesColumns holds the columns for the "certificates" table.
	CertificatesColumns = []*schema.Column{
		certificatesID,
		certificatesUserID,
		{Name: "title", Type: field.TypeString},
		{Name: "file_url", Type: field.TypeString, Default: ""},
		{Name: "issued_at", Type: field.TypeTime},
		{Name: "created_at", Type: field.TypeTime},
	}
	// CertificatesTable holds the schema information for the "certificates" table.
	CertificatesTable = &schema.Table{
		Name:       "certificates",
		Columns:    CertificatesColumns,
		PrimaryKey: []*schema.Column{certificatesID},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "certificates_users_certificates",
				Columns:    []*schema.Column{certificatesUserID},
				RefColumns: []*schema.Column{usersID},
				OnDelete:   schema.Cascade,
			},
		},
	}

	goalsID     = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	goalsUserID = &schema.Column{Name: "user_id", Type: field.TypeInt}
	goalsPeriod = &schema.Column{Name: "period", Type: field.TypeString, Size: 7}
	// GoalsColumns holds the columns for the "goals" table.
	GoalsColumns = []*schema.Column{
		goalsID,
		goalsUserID,
		goalsPeriod,
		{Name: "target_leads", Type: field.TypeInt, Default: 0},
		{Name: "target_conversions", Type: field.TypeInt, Default: 0},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// GoalsTable holds the schema information for the "goals" table.
	GoalsTable = &schema.Table{
		Name:       "goals",
		Columns:    GoalsColumns,
		PrimaryKey: []*schema.Column{goalsID},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "goals_users_goals",
				Columns:    []*schema.Column{goalsUserID},
				RefColumns: []*schema.Column{usersID},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "goals_user_period", Unique: true, Columns: []*schema.Column{goalsUserID, goalsPeriod}},
		},
	}

	trainingID = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	// TrainingMaterialsColumns holds the columns for the "training_materials" table.
	TrainingMaterialsColumns = []*schema.Column{
		trainingID,
		{Name: "title", Type: field.TypeString},
		{Name: "description", Type: field.TypeString, Size: textSize, Default: ""},
		{Name: "url", Type: field.TypeString},
		{Name: "category", Type: field.TypeString, Default: ""},
		{Name: "is_published", Type: field.TypeBool, Default: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	// TrainingMaterialsTable holds the schema information for the "training_materials" table.
	TrainingMaterialsTable = &schema.Table{
		Name:       "training_materials",
		Columns:    TrainingMaterialsColumns,
		PrimaryKey: []*schema.Column{trainingID},
	}

	integrationsID = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	// IntegrationSettingsColumns holds the columns for the "integration_settings" table.
	IntegrationSettingsColumns = []*schema.Column{
		integrationsID,
		{Name: "provider", Type: field.TypeString, Unique: true},
		{Name: "enabled", Type: field.TypeBool, Default: false},
		{Name: "config", Type: field.TypeString, Size: textSize, Default: "{}"},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// IntegrationSettingsTable holds the schema information for the "integration_settings" table.
	IntegrationSettingsTable = &schema.Table{
		Name:       "integration_settings",
		Columns:    IntegrationSettingsColumns,
		PrimaryKey: []*schema.Column{integrationsID},
	}

	suppressionsID    = &schema.Column{Name: "id", Type: field.TypeInt, Increment: true}
	suppressionsLeadA = &schema.Column{Name: "lead_a_id", Type: field.TypeInt}
	suppressionsLeadB = &schema.Column{Name: "lead_b_id", Type: field.TypeInt}
	// DuplicateSuppressionsColumns holds the columns for the "duplicate_suppressions" table.
	DuplicateSuppressionsColumns = []*schema.Column{
		suppressionsID,
		suppressionsLeadA,
		suppressionsLeadB,
		{Name: "created_by", Type: field.TypeInt, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	// DuplicateSuppressionsTable holds the schema information for the "duplicate_suppressions" table.
	// lead_a_id is always the smaller id of the pair.
	DuplicateSuppressionsTable = &schema.Table{
		Name:       "duplicate_suppressions",
		Columns:    DuplicateSuppressionsColumns,
		PrimaryKey: []*schema.Column{suppressionsID},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "duplicate_suppressions_leads_a",
				Columns:    []*schema.Column{suppressionsLeadA},
				RefColumns: []*schema.Column{leadsID},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "duplicate_suppressions_leads_b",
				Columns:    []*schema.Column{suppressionsLeadB},
				RefColumns: []*schema.Column{leadsID},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "duplicate_suppressions_pair", Unique: true, Columns: []*schema.Column{suppressionsLeadA, suppressionsLeadB}},
		},
	}
)

func init() {
	LeadsTable.ForeignKeys[0].RefTable = UsersTable
	LeadActivitiesTable.ForeignKeys[0].RefTable = LeadsTable
	LeadActivitiesTable.ForeignKeys[1].RefTable = UsersTable
	LeadCategoryAssignmentsTable.ForeignKeys[0].RefTable = LeadsTable
	LeadCategoryAssignmentsTable.ForeignKeys[1].RefTable = LeadCategoriesTable
	AssignmentRulesTable.ForeignKeys[0].RefTable = UsersTable
	TeamMessagesTable.ForeignKeys[0].RefTable = UsersTable
	TeamMessagesTable.ForeignKeys[1].RefTable = UsersTable
	TeamAnnouncementsTable.ForeignKeys[0].RefTable = UsersTable
	LandingPagesTable.ForeignKeys[0].RefTable = UsersTable
	CertificatesTable.ForeignKeys[0].RefTable = UsersTable
	GoalsTable.ForeignKeys[0].RefTable = UsersTable
	DuplicateSuppressionsTable.ForeignKeys[0].RefTable = LeadsTable
	DuplicateSuppressionsTable.ForeignKeys[1].RefTable = LeadsTable
}
