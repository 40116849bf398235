package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// CreateAppointment inserts a with its participants. Participants start in
// the pending state.
func CreateAppointment(ctx context.Context, db *gorm.DB, a *domain.Appointment) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt, a.UpdatedAt = now, now
	for i := range a.Participants {
		a.Participants[i].AppointmentID = a.ID
		if a.Participants[i].Status == "" {
			a.Participants[i].Status = domain.ResponsePending
		}
	}
	return db.WithContext(ctx).Create(a).Error
}

// GetAppointment fetches an appointment and its participants.
func GetAppointment(ctx context.Context, db *gorm.DB, id string) (*domain.Appointment, error) {
	var a domain.Appointment
	err := db.WithContext(ctx).
		Preload("Participants", func(tx *gorm.DB) *gorm.DB { return tx.Order("user_id asc") }).
		Where("id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAppointments returns a child's appointments starting at or after from,
// soonest first. A zero from lists all of them.
func ListAppointments(ctx context.Context, db *gorm.DB, childID string, from time.Time) ([]domain.Appointment, error) {
	q := db.WithContext(ctx).
		Preload("Participants", func(tx *gorm.DB) *gorm.DB { return tx.Order("user_id asc") }).
		Where("child_id = ?", childID)
	if !from.IsZero() {
		q = q.Where("starts_at >= ?", from)
	}
	var out []domain.Appointment
	err := q.Order("starts_at ASC, id ASC").Find(&out).Error
	return out, err
}

// RespondToAppointment records userID's answer. It returns ErrNotFound when
// userID is not a participant.
func RespondToAppointment(ctx context.Context, db *gorm.DB, appointmentID, userID string, status domain.ResponseStatus) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("appointment_id = ? AND user_id = ?", appointmentID, userID).
		Updates(map[string]any{"status": status, "responded_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
