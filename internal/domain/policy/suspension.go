package policy

import (
	"fmt"
	"time"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
)

// Subject — чья блокировка проверяется: самого пользователя или продавца услуги.
type Subject int

const (
	SubjectSelf Subject = iota
	SubjectSeller
)

const suspensionDateLayout = "January 2, 2006 at 15:04 MST"

// IsSuspended: suspended и срок не истёк (nil — бессрочно).
func IsSuspended(user *models.User, now time.Time) bool {
	if user.Status != valueobject.UserStatusSuspended {
		return false
	}
	return user.SuspensionEndDate == nil || user.SuspensionEndDate.After(now)
}

// CheckSuspension — единая проверка перед созданием заказа, услуги и сообщения.
func CheckSuspension(user *models.User, now time.Time, subject Subject) error {
	if user == nil || !IsSuspended(user, now) {
		return nil
	}

	who := "Your account is"
	if subject == SubjectSeller {
		who = "The student offering this service is"
	}

	if user.SuspensionEndDate == nil {
		return apperror.Suspension(fmt.Sprintf("%s permanently banned from the platform.", who))
	}
	return apperror.Suspension(fmt.Sprintf("%s suspended. The suspension will end on %s.",
		who, user.SuspensionEndDate.UTC().Format(suspensionDateLayout)))
}
