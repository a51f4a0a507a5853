package service

import "exam-timetable/internal/model"

// ── 内置约束规则目录 ──

// 规则编码
const (
	RuleNoStudentConflict     = "NO_STUDENT_CONFLICT"
	RuleRoomCapacity          = "ROOM_CAPACITY"
	RuleNoRoomDoubleBooking   = "NO_ROOM_DOUBLE_BOOKING"
	RuleNoInvigilatorConflict = "NO_INVIGILATOR_CONFLICT"
	RuleStaffUnavailability   = "STAFF_UNAVAILABILITY"
	RuleMorningOnly           = "MORNING_ONLY"
	RuleMaxExamsPerDay        = "MAX_EXAMS_PER_DAY"
	RuleBackToBack            = "BACK_TO_BACK"
	RuleInvigilatorRatio      = "INVIGILATOR_RATIO"
	RuleNoSelfInvigilation    = "NO_SELF_INVIGILATION"
	RuleLargeExamsEarly       = "LARGE_EXAMS_EARLY"
	RuleRoomSplitLimit        = "ROOM_SPLIT_LIMIT"
	RuleDepartmentGrouping    = "DEPARTMENT_GROUPING"
)

// 缺省方案与求解参数
const (
	defaultProfileName       = "default"
	defaultConfigurationName = "default"
	defaultSolverAlgorithm   = "genetic"
	defaultSolverTimeLimit   = 300
	defaultSolverPopulation  = 100
	catalogScopeKey          = "catalog"
)

func floatPtr(v float64) *float64 { return &v }

// builtinRules 内置规则；EnsureCatalog 按 code 补齐，已存在的不覆盖
func builtinRules() []model.ConstraintRule {
	return []model.ConstraintRule{
		{
			Code: RuleNoStudentConflict, Name: "学生考试不冲突",
			Description: "同一学生不能在同一考试日同一时段参加两场考试",
			RuleType:    model.RuleTypeHard, Category: "student", DefaultWeight: 1000,
			EnabledByDefault: true,
		},
		{
			Code: RuleRoomCapacity, Name: "考场容量",
			Description: "分配到考场的人数不超过考试容量",
			RuleType:    model.RuleTypeHard, Category: "room", DefaultWeight: 1000,
			EnabledByDefault: true,
		},
		{
			Code: RuleNoRoomDoubleBooking, Name: "考场不重复占用",
			Description: "同一考场同一时段只安排一场考试",
			RuleType:    model.RuleTypeHard, Category: "room", DefaultWeight: 1000,
			EnabledByDefault: true,
		},
		{
			Code: RuleNoInvigilatorConflict, Name: "监考不冲突",
			Description: "同一监考老师同一时段只监考一个考场",
			RuleType:    model.RuleTypeHard, Category: "staff", DefaultWeight: 1000,
			EnabledByDefault: true,
		},
		{
			Code: RuleStaffUnavailability, Name: "遵守监考不可用时间",
			RuleType: model.RuleTypeHard, Category: "staff", DefaultWeight: 500,
			EnabledByDefault: true, IsConfigurable: true,
		},
		{
			Code: RuleMorningOnly, Name: "仅上午考试",
			Description: "标记为仅上午的课程只排在上午时段",
			RuleType:    model.RuleTypeHard, Category: "exam", DefaultWeight: 500,
			EnabledByDefault: true, IsConfigurable: true,
		},
		{
			Code: RuleMaxExamsPerDay, Name: "学生每日考试上限",
			RuleType: model.RuleTypeSoft, Category: "student", DefaultWeight: 50,
			EnabledByDefault: true, IsConfigurable: true,
			Parameters: []model.RuleParameter{
				{Key: "max_per_day", Type: model.ParamTypeInt, Default: 2, Min: floatPtr(1), Max: floatPtr(6), Description: "每名学生每天最多考试场数"},
			},
		},
		{
			Code: RuleBackToBack, Name: "避免连续考试",
			RuleType: model.RuleTypeSoft, Category: "student", DefaultWeight: 20,
			EnabledByDefault: true, IsConfigurable: true,
			Parameters: []model.RuleParameter{
				{Key: "min_gap_periods", Type: model.ParamTypeInt, Default: 1, Min: floatPtr(0), Max: floatPtr(4), Description: "同一学生两场考试之间至少间隔的时段数"},
			},
		},
		{
			Code: RuleInvigilatorRatio, Name: "监考人数比例",
			RuleType: model.RuleTypeSoft, Category: "staff", DefaultWeight: 30,
			EnabledByDefault: true, IsConfigurable: true,
			Parameters: []model.RuleParameter{
				{Key: "students_per_invigilator", Type: model.ParamTypeInt, Default: 50, Min: floatPtr(1), Max: floatPtr(500)},
				{Key: "min_per_room", Type: model.ParamTypeInt, Default: 1, Min: floatPtr(1), Max: floatPtr(10)},
			},
		},
		{
			Code: RuleNoSelfInvigilation, Name: "避免授课教师监考本课程",
			RuleType: model.RuleTypeSoft, Category: "staff", DefaultWeight: 40,
			EnabledByDefault: true, IsConfigurable: true,
			Parameters: []model.RuleParameter{
				{Key: "allow_when_sole_instructor", Type: model.ParamTypeBool, Default: true, Description: "课程只有一名授课教师时允许其监考"},
			},
		},
		{
			Code: RuleLargeExamsEarly, Name: "大规模考试靠前",
			RuleType: model.RuleTypeSoft, Category: "exam", DefaultWeight: 10,
			EnabledByDefault: true, IsConfigurable: true,
			Parameters: []model.RuleParameter{
				{Key: "threshold", Type: model.ParamTypeInt, Default: 200, Min: floatPtr(1)},
				{Key: "latest_day_fraction", Type: model.ParamTypeFloat, Default: 0.5, Min: floatPtr(0), Max: floatPtr(1)},
			},
		},
		{
			Code: RuleRoomSplitLimit, Name: "单场考试考场数上限",
			RuleType: model.RuleTypeSoft, Category: "room", DefaultWeight: 15,
			EnabledByDefault: true, IsConfigurable: true,
			Parameters: []model.RuleParameter{
				{Key: "max_rooms", Type: model.ParamTypeInt, Default: 3, Min: floatPtr(1), Max: floatPtr(20)},
			},
		},
		{
			Code: RuleDepartmentGrouping, Name: "同系考试集中",
			RuleType: model.RuleTypeSoft, Category: "exam", DefaultWeight: 5,
			EnabledByDefault: false, IsConfigurable: true,
			Parameters: []model.RuleParameter{
				{Key: "building_affinity", Type: model.ParamTypeString, Default: "faculty", Description: "faculty | department"},
			},
		},
	}
}
