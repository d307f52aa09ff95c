package policy

import (
	"time"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
)

// Escalation — пороги по числу прежних нарушений. Меньше TempSuspensionAfter —
// предупреждение, от BanAfter — бессрочная блокировка, между ними временная
// блокировка, которая удлиняется с каждым нарушением.
type Escalation struct {
	TempSuspensionAfter int
	BanAfter            int
	TempSuspensionDays  int
}

func DefaultEscalation() Escalation {
	return Escalation{TempSuspensionAfter: 1, BanAfter: 3, TempSuspensionDays: 7}
}

// Penalty — предлагаемое наказание. SuspensionDays задан только для temp_suspension.
type Penalty struct {
	Type           valueobject.PenaltyType `json:"penalty_type"`
	SuspensionDays *int                    `json:"suspension_days,omitempty"`
	PriorCount     int                     `json:"prior_violations"`
}

// Suggest не убывает по priorCount.
func (e Escalation) Suggest(priorCount int) Penalty {
	p := Penalty{Type: valueobject.PenaltyWarning, PriorCount: priorCount}
	switch {
	case priorCount >= e.BanAfter:
		p.Type = valueobject.PenaltyPermanentBan
	case priorCount >= e.TempSuspensionAfter:
		days := e.TempSuspensionDays * (priorCount - e.TempSuspensionAfter + 1)
		p.Type = valueobject.PenaltyTempSuspension
		p.SuspensionDays = &days
	}
	return p
}

// SuspensionFor возвращает новый статус пользователя и дату окончания
// блокировки. ok=false — наказание статус не меняет.
func SuspensionFor(penalty valueobject.PenaltyType, days int, now time.Time) (endDate *time.Time, ok bool) {
	switch penalty {
	case valueobject.PenaltyTempSuspension:
		end := now.AddDate(0, 0, days)
		return &end, true
	case valueobject.PenaltyPermanentBan:
		return nil, true
	}
	return nil, false
}
