package handlers

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/http/middleware"
	"github.com/parentrak/parentrak-backend/internal/realtime"
	"github.com/parentrak/parentrak-backend/internal/search"
	"github.com/parentrak/parentrak-backend/internal/services"
	"github.com/parentrak/parentrak-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ProfileService manages the caller's profile.
type ProfileService interface {
	Me(ctx context.Context, a services.Actor) (*domain.Profile, error)
	SetRole(ctx context.Context, a services.Actor, role domain.Role) (*domain.Profile, error)
	Public(ctx context.Context, a services.Actor, userID string) (*domain.Profile, error)
}

// ChildService manages children and care teams.
type ChildService interface {
	Create(ctx context.Context, a services.Actor, in services.ChildInput) (*domain.Child, error)
	List(ctx context.Context, a services.Actor) ([]domain.Child, error)
	Get(ctx context.Context, a services.Actor, childID string) (*domain.Child, error)
	AddMember(ctx context.Context, a services.Actor, childID, userID string) (*domain.CareTeamMember, error)
	Team(ctx context.Context, a services.Actor, childID string) ([]domain.CareTeamMember, error)
}

// LogService owns the timeline.
type LogService interface {
	Create(ctx context.Context, a services.Actor, childID string, in services.LogInput) (*domain.LogEntry, error)
	Get(ctx context.Context, a services.Actor, id string) (*domain.LogEntry, error)
	ListPage(ctx context.Context, a services.Actor, childID string, page, pageSize int) ([]domain.LogEntry, int64, error)
	Stats(ctx context.Context, childID string) (int64, *time.Time, error)
	Search(ctx context.Context, a services.Actor, childID, q string, limit int) ([]search.Result, error)
	Export(ctx context.Context, a services.Actor, childID string) (filename string, body []byte, err error)
	AttachDocument(ctx context.Context, a services.Actor, childID string, up services.Upload) (*domain.LogEntry, error)
	AddVoiceNote(ctx context.Context, a services.Actor, childID string, up services.Upload) (*domain.LogEntry, error)
}

// MessageService owns the message rooms.
type MessageService interface {
	Send(ctx context.Context, a services.Actor, childID, content, clientRef string) (*domain.Message, error)
	Get(ctx context.Context, a services.Actor, id string) (*domain.Message, error)
	ListPage(ctx context.Context, a services.Actor, childID string, page, pageSize int) ([]domain.Message, int64, error)
	Stats(ctx context.Context, childID string) (int64, *time.Time, error)
}

// NotificationService reads and acknowledges notifications.
type NotificationService interface {
	ListPage(ctx context.Context, a services.Actor, childID string, page, pageSize int) ([]domain.Notification, int64, error)
	UnreadCount(ctx context.Context, a services.Actor) (int64, error)
	MarkRead(ctx context.Context, a services.Actor, id string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, a services.Actor) (int64, error)
}

// AppointmentService schedules meetings.
type AppointmentService interface {
	Create(ctx context.Context, a services.Actor, childID string, in services.AppointmentInput) (*domain.Appointment, error)
	List(ctx context.Context, a services.Actor, childID string, from time.Time) ([]domain.Appointment, error)
	Respond(ctx context.Context, a services.Actor, appointmentID string, status domain.ResponseStatus) (*domain.Appointment, error)
}

// MilestoneService tracks development milestones.
type MilestoneService interface {
	Catalog(ctx context.Context) ([]domain.Milestone, error)
	Progress(ctx context.Context, a services.Actor, childID string) ([]services.MilestoneProgress, error)
	Update(ctx context.Context, a services.Actor, childID, milestoneID string, status domain.MilestoneState, notes string) (*domain.MilestoneStatus, error)
}

// InsightService produces AI views of the timeline.
type InsightService interface {
	Insights(ctx context.Context, a services.Actor, childID string) (*services.InsightResult, error)
	Summary(ctx context.Context, a services.Actor, childID string, audience domain.Role) (string, error)
	Digest(ctx context.Context, a services.Actor, childID string, from, to time.Time) ([]byte, error)
	Translate(ctx context.Context, text, target string) (string, error)
}

// PermissionService exposes the permission matrix.
type PermissionService interface {
	Matrix(ctx context.Context) ([]domain.RolePermission, error)
	Mine(ctx context.Context, a services.Actor) (map[domain.Feature]bool, error)
	Check(ctx context.Context, a services.Actor, feature domain.Feature) (bool, error)
	Update(ctx context.Context, a services.Actor, changes []services.PermissionChange) ([]domain.RolePermission, error)
}

// Streamer upgrades a request to a websocket feed of one topic.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, topic string, allow realtime.Filter) error
}

// IdempotencyStore remembers which row a keyed POST produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string) (rowID string, found bool)
	Record(ctx context.Context, userID, scope, key, rowID string, status int)
}

//
// Handler wiring
//

// Deps are the collaborators of Handlers. Nil services leave their routes
// unregistered by the router.
type Deps struct {
	Profiles      ProfileService
	Children      ChildService
	Logs          LogService
	Messages      MessageService
	Notifications NotificationService
	Appointments  AppointmentService
	Milestones    MilestoneService
	Insights      InsightService
	Permissions   PermissionService
	Feed          Streamer
	Idempotency   IdempotencyStore

	// MaxUploadBytes caps multipart uploads; 0 means 10 MiB.
	MaxUploadBytes int64
}

// Handlers groups every REST endpoint.
type Handlers struct {
	Deps
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}
	return &Handlers{Deps: d}
}

// actor returns the authenticated caller, failing with 401 when Auth did
// not run.
func actor(c *gin.Context) (services.Actor, bool) {
	id, found := middleware.IdentityFrom(c)
	if !found || id.UserID == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return services.Actor{}, false
	}
	return services.Actor{UserID: id.UserID, Role: id.Role, Name: id.Name, Email: id.Email}, true
}

// clampPagination reads page and page_size, defaulting to 1 and 20 and
// capping the size at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.QueryInt(c.Query("page"), 1, 1, math.MaxInt32)
	pageSize = utils.QueryInt(c.Query("page_size"), defaultPageSize, 1, maxPageSize)
	return
}

// replayed serves a stored result when the request repeats an
// Idempotency-Key. load fetches the recorded row; a failed load falls
// through to normal processing.
func (h *Handlers) replayed(c *gin.Context, a services.Actor, load func(rowID string) (any, error)) bool {
	if h.Idempotency == nil || !middleware.IsReplay(c) {
		return false
	}
	key, _ := middleware.GetIdempotencyKey(c)
	rowID, found := h.Idempotency.Lookup(c.Request.Context(), a.UserID, middleware.GetIdempotencyScope(c), key)
	if !found {
		return false
	}
	row, err := load(rowID)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("row_id", rowID).Msg("idempotent replay load")
		return false
	}
	c.Header(middleware.HeaderIdempotencyReplayed, "true")
	ok(c, http.StatusCreated, row)
	return true
}

// remember records rowID under the request's Idempotency-Key, if any.
func (h *Handlers) remember(c *gin.Context, a services.Actor, rowID string) {
	if h.Idempotency == nil {
		return
	}
	key, found := middleware.GetIdempotencyKey(c)
	if !found {
		return
	}
	h.Idempotency.Record(c.Request.Context(), a.UserID, middleware.GetIdempotencyScope(c), key, rowID, http.StatusCreated)
}
