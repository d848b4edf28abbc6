package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressConfigValidate(t *testing.T) {
	valid := ProgressConfig{
		CompletionThreshold:   50,
		NotifyDoctorThreshold: 80,
		CelebrationThreshold:  90,
		QuickDurationSeconds:  120,
		ScoreMergePolicy:      "keep_max",
	}
	assert.NoError(t, valid.Validate())

	empty := valid
	empty.ScoreMergePolicy = ""
	assert.NoError(t, empty.Validate())

	cases := map[string]func(p *ProgressConfig){
		"negative completion": func(p *ProgressConfig) { p.CompletionThreshold = -1 },
		"doctor above 100":    func(p *ProgressConfig) { p.NotifyDoctorThreshold = 101 },
		"celebration above":   func(p *ProgressConfig) { p.CelebrationThreshold = 150 },
		"negative duration":   func(p *ProgressConfig) { p.QuickDurationSeconds = -5 },
		"unknown policy":      func(p *ProgressConfig) { p.ScoreMergePolicy = "average" },
	}
	for name, mutate := range cases {
		p := valid
		mutate(&p)
		assert.Error(t, p.Validate(), name)
	}
}
