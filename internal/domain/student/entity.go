package student

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Tier - категория успеваемости студента, вычисляемая из балла.
type Tier int

const (
	// TierLow - балл ниже 40.
	TierLow Tier = iota
	// TierMid - балл от 40 (включительно) до 75.
	TierMid
	// TierHigh - балл 75 и выше.
	TierHigh
)

// Пороговые значения баллов для категорий.
const (
	MidThreshold  = 40.0
	HighThreshold = 75.0
)

// Tiers перечисляет категории в порядке формирования группы: high, mid, low.
var Tiers = [...]Tier{TierHigh, TierMid, TierLow}

// TierForScore вычисляет категорию по баллу.
func TierForScore(score float64) Tier {
	switch {
	case score < MidThreshold:
		return TierLow
	case score < HighThreshold:
		return TierMid
	default:
		return TierHigh
	}
}

// IsValid проверяет, что категория корректна.
func (t Tier) IsValid() bool {
	return t >= TierLow && t <= TierHigh
}

// String возвращает строковое представление категории.
func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMid:
		return "mid"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseTier разбирает строковое представление категории.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return TierLow, nil
	case "mid":
		return TierMid, nil
	case "high":
		return TierHigh, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
}

// MarshalText сериализует категорию как строку (для JSON снапшотов).
func (t Tier) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, ErrInvalidTier
	}
	return []byte(t.String()), nil
}

// UnmarshalText восстанавливает категорию из строки.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidID - идентификатор должен быть положительным.
	ErrInvalidID = errors.New("invalid student id: must be positive")

	// ErrInvalidName - невалидное имя.
	ErrInvalidName = errors.New("invalid student name: must be 1-100 chars")

	// ErrInvalidScore - балл должен быть конечным неотрицательным числом.
	ErrInvalidScore = errors.New("invalid score: must be a finite non-negative number")

	// ErrInvalidTier - неизвестная категория.
	ErrInvalidTier = errors.New("invalid tier")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record - запись о студенте. Идентичность неизменна, балл и категория меняются вместе.
type Record struct {
	// ID - уникальный идентификатор студента.
	ID int `json:"id"`

	// Name - имя студента.
	Name string `json:"name"`

	// Score - текущий балл.
	Score float64 `json:"score"`

	// Tier - категория, всегда соответствует Score.
	Tier Tier `json:"tier"`

	// PreferredLanguage - язык, на котором студент хочет заниматься.
	PreferredLanguage string `json:"preferred_language"`
}

// NewRecordParams содержит параметры для создания записи.
type NewRecordParams struct {
	ID                int
	Name              string
	Score             float64
	PreferredLanguage string
}

// NewRecord создаёт запись с валидацией полей; категория вычисляется из балла.
func NewRecord(params NewRecordParams) (*Record, error) {
	r := &Record{
		ID:                params.ID,
		Name:              strings.TrimSpace(params.Name),
		Score:             params.Score,
		Tier:              TierForScore(params.Score),
		PreferredLanguage: strings.TrimSpace(params.PreferredLanguage),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate проверяет идентификатор, имя и балл. Категорию не проверяет:
// её всегда можно пересчитать через TierForScore.
func (r *Record) Validate() error {
	if r.ID <= 0 {
		return ErrInvalidID
	}

	if n := len(strings.TrimSpace(r.Name)); n == 0 || n > 100 {
		return ErrInvalidName
	}

	if !validScore(r.Score) {
		return ErrInvalidScore
	}

	return nil
}

// MustNewRecord - как NewRecord, но паникует при ошибке. Для тестов и сценариев.
func MustNewRecord(id int, name string, score float64, language string) *Record {
	r, err := NewRecord(NewRecordParams{ID: id, Name: name, Score: score, PreferredLanguage: language})
	if err != nil {
		panic(err)
	}
	return r
}

// UpdateScore меняет балл и пересчитывает категорию. Возвращает прежнюю категорию.
func (r *Record) UpdateScore(score float64) (previous Tier, err error) {
	if !validScore(score) {
		return r.Tier, ErrInvalidScore
	}

	previous = r.Tier
	r.Score = score
	r.Tier = TierForScore(score)

	return previous, nil
}

// Clone возвращает независимую копию записи.
func (r *Record) Clone() Record {
	return *r
}

func validScore(score float64) bool {
	return !math.IsNaN(score) && !math.IsInf(score, 0) && score >= 0
}
