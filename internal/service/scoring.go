package service

import (
	"learnbridge_backend/internal/config"
	"learnbridge_backend/internal/model"
	"math"
	"sync"
	"time"
)

const (
	DefaultCompletionThreshold   = 50
	DefaultNotifyDoctorThreshold = 80
	DefaultCelebrationThreshold  = 90
	DefaultQuickDurationSeconds  = 120

	quickBonusPoints   = 10
	perfectBonusPoints = 25
	celebrationXP      = 50
	standardXP         = 25
	xpPerLevel         = 200
)

// Thresholds 完成、通知医生、庆祝三个阈值以及快速完成奖励窗口
type Thresholds struct {
	Completion           int
	NotifyDoctor         int
	Celebration          int
	QuickDurationSeconds int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Completion:           DefaultCompletionThreshold,
		NotifyDoctor:         DefaultNotifyDoctorThreshold,
		Celebration:          DefaultCelebrationThreshold,
		QuickDurationSeconds: DefaultQuickDurationSeconds,
	}
}

func ThresholdsFromConfig(p config.ProgressConfig) Thresholds {
	return Thresholds{
		Completion:           p.CompletionThreshold,
		NotifyDoctor:         p.NotifyDoctorThreshold,
		Celebration:          p.CelebrationThreshold,
		QuickDurationSeconds: p.QuickDurationSeconds,
	}
}

// CalculatePercentage = min(100, round(score/maxScore*100))，maxScore 非正时按 100 计
func CalculatePercentage(score, maxScore int) int {
	if maxScore <= 0 {
		maxScore = model.DefaultMaxScore
	}
	if score <= 0 {
		return 0
	}
	pct := int(math.Round(float64(score) / float64(maxScore) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

func (t Thresholds) IsCompleted(percentage int) bool {
	return percentage >= t.Completion
}

func (t Thresholds) ShouldNotifyDoctor(percentage int) bool {
	return percentage >= t.NotifyDoctor
}

func (t Thresholds) IsCelebration(percentage int) bool {
	return percentage >= t.Celebration
}

// Points 基础分取整到 10，快速完成与满分各有奖励
func (t Thresholds) Points(percentage, durationSeconds int) int {
	points := int(math.Round(float64(percentage)/10)) * 10
	if durationSeconds < t.QuickDurationSeconds {
		points += quickBonusPoints
	}
	if percentage == 100 {
		points += perfectBonusPoints
	}
	return points
}

func (t Thresholds) XPReward(percentage int) int {
	if t.IsCelebration(percentage) {
		return celebrationXP
	}
	return standardXP
}

func IsCompleted(percentage int) bool {
	return DefaultThresholds().IsCompleted(percentage)
}

func CalculatePoints(percentage, durationSeconds int) int {
	return DefaultThresholds().Points(percentage, durationSeconds)
}

// CalculateStreak 以今天或昨天为终点的连续活跃天数
func CalculateStreak(activityTimes []time.Time, now time.Time) int {
	if len(activityTimes) == 0 {
		return 0
	}
	loc := now.Location()
	days := make(map[string]bool, len(activityTimes))
	for _, t := range activityTimes {
		days[t.In(loc).Format("2006-01-02")] = true
	}

	cursor := startOfDay(now)
	if !days[cursor.Format("2006-01-02")] {
		cursor = cursor.AddDate(0, 0, -1)
		if !days[cursor.Format("2006-01-02")] {
			return 0
		}
	}

	streak := 0
	for days[cursor.Format("2006-01-02")] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func calculateLevel(xp int) (int, int) {
	// 每 200XP 升一级
	level := xp / xpPerLevel
	nextLevelXP := (level + 1) * xpPerLevel
	return level, nextLevelXP
}

// ProgressSettings 评分阈值与合并策略，支持配置热更新
type ProgressSettings struct {
	mu         sync.RWMutex
	thresholds Thresholds
	policy     model.ScoreMergePolicy
}

func NewProgressSettings(p config.ProgressConfig) *ProgressSettings {
	s := &ProgressSettings{}
	s.Apply(p)
	return s
}

func DefaultProgressSettings() *ProgressSettings {
	return &ProgressSettings{thresholds: DefaultThresholds(), policy: model.MergeKeepMax}
}

func (s *ProgressSettings) Apply(p config.ProgressConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = ThresholdsFromConfig(p)
	s.policy = model.ParseScoreMergePolicy(p.ScoreMergePolicy)
}

func (s *ProgressSettings) Thresholds() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

func (s *ProgressSettings) Policy() model.ScoreMergePolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}
