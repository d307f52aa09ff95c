package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
)

// User — участник площадки. Учётными данными владеет внешний сервис
// авторизации, здесь хранится только то, что нужно ядру.
type User struct {
	ID                uuid.UUID              `db:"id" json:"id"`
	Email             string                 `db:"email" json:"email"`
	Username          string                 `db:"username" json:"username"`
	Role              valueobject.Role       `db:"role" json:"role"`
	Status            valueobject.UserStatus `db:"status" json:"status"`
	SuspensionEndDate *time.Time             `db:"suspension_end_date" json:"suspension_end_date,omitempty"`
	PayoutBank        *string                `db:"payout_bank" json:"-"`
	PayoutAccount     *string                `db:"payout_account" json:"-"`
	CreatedAt         time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time              `db:"updated_at" json:"updated_at"`
}

// IsPermanentlyBanned — suspended без даты окончания.
func (u *User) IsPermanentlyBanned() bool {
	return u.Status == valueobject.UserStatusSuspended && u.SuspensionEndDate == nil
}
