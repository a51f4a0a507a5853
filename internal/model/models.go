package model

// All 全部持久化模型，按外键依赖排序。
// 生产库以 SQL 迁移为准，这里供测试库 AutoMigrate 使用。
func All() []interface{} {
	return []interface{}{
		&TimeSlotTemplate{},
		&TimeSlotPeriod{},
		&AcademicSession{},
		&StagingRecord{},
		&EtlRun{},
		&Faculty{},
		&Department{},
		&Programme{},
		&Building{},
		&Room{},
		&Student{},
		&Staff{},
		&StaffUnavailability{},
		&Course{},
		&CourseDepartment{},
		&CourseFaculty{},
		&CourseInstructor{},
		&CourseRegistration{},
		&Exam{},
		&ConstraintRule{},
		&ConstraintProfile{},
		&ConstraintProfileRule{},
		&SystemConfiguration{},
		&TimetableJob{},
		&TimetableScenario{},
		&TimetableVersion{},
		&TimetableAssignment{},
		&TimetableInvigilator{},
		&ExamLock{},
		&TimetableConflict{},
		&AuditLogEntry{},
	}
}
