package model

import (
	"errors"
	"time"
)

// ActivityAttempt 每个 (student, module, activity) 仅一条，后续完成通过 upsert 更新
type ActivityAttempt struct {
	ID              uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID       uint       `gorm:"uniqueIndex:idx_attempt_key;not null" json:"studentId"`
	ModuleType      ModuleType `gorm:"size:20;uniqueIndex:idx_attempt_key;not null" json:"moduleType"`
	ActivityID      string     `gorm:"size:64;uniqueIndex:idx_attempt_key;not null" json:"activityId"`
	Score           int        `gorm:"default:0" json:"score"`
	MaxScore        int        `gorm:"default:100" json:"maxScore"`
	Percentage      int        `gorm:"default:0" json:"percentage"`
	DurationSeconds int        `gorm:"default:0" json:"durationSeconds"`
	Accuracy        int        `gorm:"default:0" json:"accuracy"`
	Completed       bool       `gorm:"default:false;index" json:"completed"`
	AttemptCount    int        `gorm:"default:1" json:"attemptCount"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (ActivityAttempt) TableName() string {
	return "activity_attempts"
}

// ScoreMergePolicy 已有记录时新成绩如何合并
type ScoreMergePolicy string

const (
	MergeOverwrite ScoreMergePolicy = "overwrite"
	MergeKeepMax   ScoreMergePolicy = "keep_max"
)

func ParseScoreMergePolicy(s string) ScoreMergePolicy {
	if ScoreMergePolicy(s) == MergeOverwrite {
		return MergeOverwrite
	}
	return MergeKeepMax
}

// Merge 合并历史记录与本次成绩。两种策略下 attemptCount 均递增、时长取最新
func (p ScoreMergePolicy) Merge(prev, next ActivityAttempt) ActivityAttempt {
	merged := next
	merged.ID = prev.ID
	merged.CreatedAt = prev.CreatedAt
	merged.AttemptCount = prev.AttemptCount + 1

	if p == MergeKeepMax && prev.Percentage > next.Percentage {
		merged.Score = prev.Score
		merged.MaxScore = prev.MaxScore
		merged.Percentage = prev.Percentage
		merged.Accuracy = prev.Accuracy
	}
	if p == MergeKeepMax {
		merged.Completed = prev.Completed || next.Completed
	}
	return merged
}

var ErrDetailsMismatch = errors.New("attempt details do not match module type")

// AttemptDetails 按模块区分的活动细节，Kind 必须与活动所属模块一致
type AttemptDetails struct {
	Kind    ModuleType      `json:"kind"`
	Reading *ReadingDetails `json:"reading,omitempty"`
	Math    *MathDetails    `json:"math,omitempty"`
	Writing *WritingDetails `json:"writing,omitempty"`
	Motor   *MotorDetails   `json:"motor,omitempty"`
}

type ReadingDetails struct {
	WordsRead     int      `json:"wordsRead"`
	Mistakes      int      `json:"mistakes"`
	MissedLetters []string `json:"missedLetters,omitempty"`
}

type MathDetails struct {
	ProblemsSolved int    `json:"problemsSolved"`
	Mistakes       int    `json:"mistakes"`
	Operation      string `json:"operation,omitempty"`
}

type WritingDetails struct {
	StrokeCount    int     `json:"strokeCount"`
	TracingPrecise float64 `json:"tracingPrecision"`
}

type MotorDetails struct {
	Taps          int     `json:"taps"`
	ReactionMS    int     `json:"reactionMs"`
	BalanceScore  float64 `json:"balanceScore"`
	FramesScanned int     `json:"framesScanned,omitempty"`
}

// Validate 只允许与 Kind 对应的那一个分支
func (d *AttemptDetails) Validate(module ModuleType) error {
	if d == nil {
		return nil
	}
	if d.Kind != module {
		return ErrDetailsMismatch
	}
	set := 0
	var want bool
	for kind, present := range map[ModuleType]bool{
		Dyslexia:    d.Reading != nil,
		Dyscalculia: d.Math != nil,
		Dysgraphia:  d.Writing != nil,
		Dyspraxia:   d.Motor != nil,
	} {
		if present {
			set++
			if kind == module {
				want = true
			}
		}
	}
	if set > 1 || (set == 1 && !want) {
		return ErrDetailsMismatch
	}
	return nil
}
