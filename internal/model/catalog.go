package model

// ModuleType 学习差异模块
type ModuleType string

const (
	Dyslexia    ModuleType = "dyslexia"
	Dyscalculia ModuleType = "dyscalculia"
	Dysgraphia  ModuleType = "dysgraphia"
	Dyspraxia   ModuleType = "dyspraxia"
)

// DefaultMaxScore 未知活动的满分
const DefaultMaxScore = 100

type CatalogActivity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MaxScore int    `json:"maxScore"`
}

type CatalogModule struct {
	Type       ModuleType        `json:"type"`
	Name       string            `json:"name"`
	Activities []CatalogActivity `json:"activities"`
}

var catalog = []CatalogModule{
	{
		Type: Dyslexia,
		Name: "Reading & Letters",
		Activities: []CatalogActivity{
			{ID: "letter-match", Name: "Letter Match", MaxScore: 130},
			{ID: "phonics-builder", Name: "Phonics Builder", MaxScore: 100},
			{ID: "word-scramble", Name: "Word Scramble", MaxScore: 100},
			{ID: "reading-comprehension", Name: "Reading Comprehension", MaxScore: 100},
		},
	},
	{
		Type: Dyscalculia,
		Name: "Numbers & Math",
		Activities: []CatalogActivity{
			{ID: "number-line", Name: "Number Line", MaxScore: 100},
			{ID: "counting-objects", Name: "Counting Objects", MaxScore: 100},
			{ID: "math-facts", Name: "Math Facts", MaxScore: 100},
			{ID: "money-math", Name: "Money Math", MaxScore: 100},
		},
	},
	{
		Type: Dysgraphia,
		Name: "Writing & Tracing",
		Activities: []CatalogActivity{
			{ID: "letter-tracing", Name: "Letter Tracing", MaxScore: 100},
			{ID: "word-copying", Name: "Word Copying", MaxScore: 100},
			{ID: "sentence-builder", Name: "Sentence Builder", MaxScore: 100},
		},
	},
	{
		Type: Dyspraxia,
		Name: "Movement & Coordination",
		Activities: []CatalogActivity{
			{ID: "balance-challenge", Name: "Balance Challenge", MaxScore: 100},
			{ID: "tap-rhythm", Name: "Tap Rhythm", MaxScore: 100},
			{ID: "mirror-moves", Name: "Mirror Moves", MaxScore: 100},
		},
	},
}

func (m ModuleType) Valid() bool {
	_, ok := FindModule(m)
	return ok
}

func Catalog() []CatalogModule {
	return catalog
}

func FindModule(m ModuleType) (CatalogModule, bool) {
	for _, mod := range catalog {
		if mod.Type == m {
			return mod, true
		}
	}
	return CatalogModule{}, false
}

// FindActivity 查找活动元数据，未知活动返回 false
func FindActivity(m ModuleType, activityID string) (CatalogActivity, bool) {
	mod, ok := FindModule(m)
	if !ok {
		return CatalogActivity{}, false
	}
	for _, a := range mod.Activities {
		if a.ID == activityID {
			return a, true
		}
	}
	return CatalogActivity{}, false
}

// ResolveMaxScore 未传满分时取目录默认值，未知活动回退到 100
func ResolveMaxScore(m ModuleType, activityID string, requested int) int {
	if requested > 0 {
		return requested
	}
	if a, ok := FindActivity(m, activityID); ok && a.MaxScore > 0 {
		return a.MaxScore
	}
	return DefaultMaxScore
}

// ActivityName 通知模板使用的显示名称
func ActivityName(m ModuleType, activityID string) string {
	if a, ok := FindActivity(m, activityID); ok {
		return a.Name
	}
	return activityID
}

func ModuleName(m ModuleType) string {
	if mod, ok := FindModule(m); ok {
		return mod.Name
	}
	return string(m)
}

// ActivityIDs 模块目录内的全部活动 ID，用于 mastery 判定
func ActivityIDs(m ModuleType) []string {
	mod, ok := FindModule(m)
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(mod.Activities))
	for _, a := range mod.Activities {
		ids = append(ids, a.ID)
	}
	return ids
}
