package model

// ModuleStat 按模块聚合的完成情况
type ModuleStat struct {
	ModuleType        ModuleType `json:"moduleType"`
	Attempts          int64      `json:"attempts"`
	Completed         int64      `json:"completed"`
	AveragePercentage float64    `json:"averagePercentage"`
	CatalogSize       int        `json:"catalogSize" gorm:"-"`
}

type RoleCount struct {
	Role  UserRole `json:"role"`
	Count int64    `json:"count"`
}
