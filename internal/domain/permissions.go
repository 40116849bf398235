package domain

import "time"

// Feature names a gated capability in the permission matrix.
type Feature string

const (
	FeatureAddChild           Feature = "add_child"
	FeatureViewLogs           Feature = "view_logs"
	FeatureCreateLogs         Feature = "create_logs"
	FeatureViewMessages       Feature = "view_messages"
	FeatureSendMessages       Feature = "send_messages"
	FeatureManageAppointments Feature = "manage_appointments"
	FeatureManageMilestones   Feature = "manage_milestones"
	FeatureViewInsights       Feature = "view_insights"
	FeatureExportData         Feature = "export_data"
)

// Features lists every gated feature.
var Features = []Feature{
	FeatureAddChild,
	FeatureViewLogs,
	FeatureCreateLogs,
	FeatureViewMessages,
	FeatureSendMessages,
	FeatureManageAppointments,
	FeatureManageMilestones,
	FeatureViewInsights,
	FeatureExportData,
}

// RolePermission is one cell of the permission matrix. The server table is
// the source of truth; clients and middleware cache it with a TTL.
type RolePermission struct {
	Role      Role      `json:"role"      gorm:"type:varchar(16);primaryKey"`
	Feature   Feature   `json:"feature"   gorm:"type:varchar(32);primaryKey"`
	Allowed   bool      `json:"allowed"   gorm:"not null;default:false"`
	UpdatedBy string    `json:"updated_by,omitempty" gorm:"type:varchar(64)"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for RolePermission.
func (RolePermission) TableName() string { return "role_permissions" }

// DefaultPermissions is the matrix seeded into an empty database.
func DefaultPermissions() []RolePermission {
	grant := map[Role][]Feature{
		RoleParent:  Features,
		RoleTeacher: {FeatureViewLogs, FeatureCreateLogs, FeatureViewMessages, FeatureSendMessages, FeatureManageMilestones, FeatureViewInsights},
		RoleDoctor:  {FeatureViewLogs, FeatureCreateLogs, FeatureViewMessages, FeatureSendMessages, FeatureManageAppointments, FeatureManageMilestones, FeatureViewInsights, FeatureExportData},
		RoleAdmin:   Features,
	}
	var out []RolePermission
	for _, r := range Roles {
		allowed := make(map[Feature]bool, len(grant[r]))
		for _, f := range grant[r] {
			allowed[f] = true
		}
		for _, f := range Features {
			out = append(out, RolePermission{Role: r, Feature: f, Allowed: allowed[f]})
		}
	}
	return out
}

// DefaultMilestones is the catalog seeded into an empty database.
func DefaultMilestones() []Milestone {
	return []Milestone{
		{ID: "social-smile", Category: "social", Title: "Smiles at people", MinAgeMonth: 1, MaxAgeMonth: 3},
		{ID: "motor-rolls-over", Category: "motor", Title: "Rolls over in both directions", MinAgeMonth: 4, MaxAgeMonth: 6},
		{ID: "motor-sits", Category: "motor", Title: "Sits without support", MinAgeMonth: 6, MaxAgeMonth: 9},
		{ID: "language-first-words", Category: "language", Title: "Says first words", MinAgeMonth: 9, MaxAgeMonth: 14},
		{ID: "motor-walks", Category: "motor", Title: "Walks independently", MinAgeMonth: 9, MaxAgeMonth: 18},
		{ID: "language-two-word", Category: "language", Title: "Uses two-word phrases", MinAgeMonth: 18, MaxAgeMonth: 24},
		{ID: "cognitive-pretend-play", Category: "cognitive", Title: "Engages in pretend play", MinAgeMonth: 18, MaxAgeMonth: 30},
		{ID: "social-takes-turns", Category: "social", Title: "Takes turns in games", MinAgeMonth: 30, MaxAgeMonth: 42},
	}
}
