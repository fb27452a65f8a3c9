// Package student содержит доменную модель студента, ожидающего место в учебной группе.
//
// Пакет определяет:
//
//   - Сущность Record: идентификатор, имя, балл, категория, язык
//   - Value Object Tier: low / mid / high
//
// # Категории
//
// Категория всегда выводится из балла и никогда не задаётся отдельно:
//
//	score < 40       -> TierLow
//	40 <= score < 75 -> TierMid
//	score >= 75      -> TierHigh
//
// Изменение балла через UpdateScore пересчитывает категорию:
//
//	rec, err := NewRecord(NewRecordParams{
//	    ID:                42,
//	    Name:              "Amanda",
//	    Score:             85,
//	    PreferredLanguage: "English",
//	})
//	prev, err := rec.UpdateScore(30) // prev == TierHigh, rec.Tier == TierLow
//
// Пакет не зависит от внешних библиотек и от остальных доменных пакетов.
package student
