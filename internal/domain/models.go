// Package domain defines the persistence models for children, their care
// team, timeline logs, chat messages, notifications, appointments and
// developmental milestones. These types are mapped with GORM and form the
// core data layer of the coordination service.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Role is the account role stored on a Profile.
type Role string

const (
	RoleParent  Role = "parent"
	RoleTeacher Role = "teacher"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Roles lists every known role in display order.
var Roles = []Role{RoleParent, RoleTeacher, RoleDoctor, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleTeacher, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// Profile is the local record of an identity-provider user. The ID is the
// provider subject; Role is set once during onboarding.
type Profile struct {
	ID        string    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;default:''"`
	Email     string    `json:"email"      gorm:"type:varchar(255);index"`
	Role      Role      `json:"role"       gorm:"type:varchar(16);not null;default:'parent'"`
	RoleSet   bool      `json:"role_set"   gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Child is a child record owned by exactly one parent account. Children are
// never deleted through the API.
//
// Allergies and Medications are stored as comma separated lists (see
// StringList) to stay portable across SQLite and Postgres.
type Child struct {
	ID          string     `json:"id"           gorm:"type:char(36);primaryKey"`
	ParentID    string     `json:"parent_id"    gorm:"type:varchar(64);not null;index"`
	Name        string     `json:"name"         gorm:"type:varchar(255);not null"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Allergies   StringList `json:"allergies"    gorm:"type:text"`
	Medications StringList `json:"medications"  gorm:"type:text"`
	AISummary   string     `json:"ai_summary"   gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Child.
func (Child) TableName() string { return "children" }

// CareTeamMember grants a user access to a child. The owning parent is
// inserted as a member when the child is created.
type CareTeamMember struct {
	ChildID   string    `json:"child_id"   gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);primaryKey;index"`
	Role      Role      `json:"role"       gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `json:"created_at"`

	Child Child `json:"-" gorm:"foreignKey:ChildID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CareTeamMember.
func (CareTeamMember) TableName() string { return "care_team_members" }

// LogEntry is one observation on a child's timeline. Entries are immutable:
// there is no update or delete path.
//
// Fields:
//   - UserID / AuthorRole / AuthorName: who wrote it, denormalized for display.
//   - Title / Description: free text.
//   - Tags / EmotionScore: derived from the text when the entry is created.
//   - AudioURL / DocumentURL: optional attachments.
//   - ParentSummary / TeacherSummary / DoctorSummary: per-audience summaries.
//   - ClientRef: the client's optimistic correlation id, echoed in push events.
type LogEntry struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ChildID        string         `json:"child_id"        gorm:"type:char(36);not null;index:idx_child_logs,priority:1"`
	UserID         string         `json:"user_id"         gorm:"type:varchar(64);not null;index"`
	AuthorRole     Role           `json:"author_role"     gorm:"type:varchar(16);not null"`
	AuthorName     string         `json:"author_name"     gorm:"type:varchar(255)"`
	Title          string         `json:"title"           gorm:"type:varchar(255);not null"`
	Description    string         `json:"description"     gorm:"type:text"`
	Tags           StringList     `json:"tags"            gorm:"type:text"`
	EmotionScore   float64        `json:"emotion_score"`
	AudioURL       string         `json:"audio_url,omitempty"    gorm:"type:text"`
	DocumentURL    string         `json:"document_url,omitempty" gorm:"type:text"`
	ParentSummary  string         `json:"parent_summary,omitempty"  gorm:"type:text"`
	TeacherSummary string         `json:"teacher_summary,omitempty" gorm:"type:text"`
	DoctorSummary  string         `json:"doctor_summary,omitempty"  gorm:"type:text"`
	ClientRef      string         `json:"client_ref,omitempty"      gorm:"type:varchar(64)"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index:idx_child_logs,priority:2"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`

	Child Child `json:"-" gorm:"foreignKey:ChildID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for LogEntry.
func (LogEntry) TableName() string { return "logs" }

// Message is one chat line in a child's room. Messages are append-only.
type Message struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ChildID    string    `json:"child_id"    gorm:"type:char(36);not null;index:idx_child_msgs,priority:1"`
	UserID     string    `json:"user_id"     gorm:"type:varchar(64);not null"`
	AuthorName string    `json:"author_name" gorm:"type:varchar(255)"`
	Content    string    `json:"content"     gorm:"type:text;not null"`
	ClientRef  string    `json:"client_ref,omitempty" gorm:"type:varchar(64)"`
	CreatedAt  time.Time `json:"created_at"  gorm:"index:idx_child_msgs,priority:2"`

	Child Child `json:"-" gorm:"foreignKey:ChildID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Notification is addressed to exactly one recipient. Read only ever moves
// from false to true and only the recipient may set it.
type Notification struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_notifs,priority:1"`
	ChildID   string    `json:"child_id"   gorm:"type:char(36);not null;index"`
	LogID     *string   `json:"log_id,omitempty" gorm:"type:char(36)"`
	Kind      string    `json:"kind"       gorm:"type:varchar(32);not null"`
	Title     string    `json:"title"      gorm:"type:varchar(255);not null"`
	Body      string    `json:"body"       gorm:"type:text"`
	Read      bool      `json:"read"       gorm:"not null;default:false;index:idx_user_notifs,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// Notification kinds.
const (
	NotificationNewLog      = "new_log"
	NotificationNewMessage  = "new_message"
	NotificationAppointment = "appointment"
)

// MeetingType describes how an appointment takes place.
type MeetingType string

const (
	MeetingInPerson MeetingType = "in_person"
	MeetingVideo    MeetingType = "video"
	MeetingPhone    MeetingType = "phone"
)

// Appointment is a scheduled meeting about a child.
type Appointment struct {
	ID           string        `json:"id"            gorm:"type:char(36);primaryKey"`
	ChildID      string        `json:"child_id"      gorm:"type:char(36);not null;index"`
	CreatedBy    string        `json:"created_by"    gorm:"type:varchar(64);not null"`
	Title        string        `json:"title"         gorm:"type:varchar(255);not null"`
	Description  string        `json:"description"   gorm:"type:text"`
	StartsAt     time.Time     `json:"starts_at"     gorm:"not null;index"`
	EndsAt       time.Time     `json:"ends_at"       gorm:"not null"`
	Location     string        `json:"location"      gorm:"type:varchar(255)"`
	MeetingType  MeetingType   `json:"meeting_type"  gorm:"type:varchar(16);not null;default:'in_person'"`
	Participants []Participant `json:"participants"  gorm:"foreignKey:AppointmentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Appointment.
func (Appointment) TableName() string { return "appointments" }

// ResponseStatus is a participant's answer to an appointment.
type ResponseStatus string

const (
	ResponsePending  ResponseStatus = "pending"
	ResponseAccepted ResponseStatus = "accepted"
	ResponseDeclined ResponseStatus = "declined"
)

// Participant is one invitee of an appointment.
type Participant struct {
	AppointmentID string         `json:"appointment_id" gorm:"type:char(36);primaryKey"`
	UserID        string         `json:"user_id"        gorm:"type:varchar(64);primaryKey;index"`
	Status        ResponseStatus `json:"status"         gorm:"type:varchar(16);not null;default:'pending'"`
	RespondedAt   *time.Time     `json:"responded_at,omitempty"`
}

// TableName returns the database table name for Participant.
func (Participant) TableName() string { return "appointment_participants" }

// Milestone is a catalog entry of the developmental milestones tracked.
type Milestone struct {
	ID          string `json:"id"           gorm:"type:varchar(64);primaryKey"`
	Category    string `json:"category"     gorm:"type:varchar(32);not null"`
	Title       string `json:"title"        gorm:"type:varchar(255);not null"`
	MinAgeMonth int    `json:"min_age_months"`
	MaxAgeMonth int    `json:"max_age_months"`
}

// TableName returns the database table name for Milestone.
func (Milestone) TableName() string { return "milestones" }

// MilestoneState is the progress of a child towards a milestone.
type MilestoneState string

const (
	MilestoneNotYet     MilestoneState = "not_yet"
	MilestoneInProgress MilestoneState = "in_progress"
	MilestoneAchieved   MilestoneState = "achieved"
)

// Valid reports whether s is a known milestone state.
func (s MilestoneState) Valid() bool {
	switch s {
	case MilestoneNotYet, MilestoneInProgress, MilestoneAchieved:
		return true
	}
	return false
}

// MilestoneStatus is the (child, milestone) progress row. It is upserted.
type MilestoneStatus struct {
	ChildID     string         `json:"child_id"     gorm:"type:char(36);primaryKey"`
	MilestoneID string         `json:"milestone_id" gorm:"type:varchar(64);primaryKey"`
	Status      MilestoneState `json:"status"       gorm:"type:varchar(16);not null;default:'not_yet'"`
	Notes       string         `json:"notes"        gorm:"type:text"`
	UpdatedBy   string         `json:"updated_by"   gorm:"type:varchar(64)"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName returns the database table name for MilestoneStatus.
func (MilestoneStatus) TableName() string { return "milestone_statuses" }
