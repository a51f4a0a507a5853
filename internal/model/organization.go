package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ── 组织层级：Faculty → Department → Programme；Building → Room ──
// 自然键（code）仅在 session 内唯一

// Faculty 学院 — 对应 faculties
type Faculty struct {
	FacultyID string `gorm:"type:uuid;primaryKey"                                           json:"faculty_id"`
	SessionID string `gorm:"type:uuid;not null;uniqueIndex:uq_faculties_session_code"      json:"session_id"`
	Code      string `gorm:"type:varchar(50);not null;uniqueIndex:uq_faculties_session_code" json:"code"`
	Name      string `gorm:"type:varchar(200);not null"                                     json:"name"`
	BaseModel
}

func (Faculty) TableName() string { return "faculties" }

func (f *Faculty) BeforeCreate(*gorm.DB) error {
	ensureID(&f.FacultyID)
	return nil
}

// Department 系 — 对应 departments，所属学院为必填父级
type Department struct {
	DepartmentID string `gorm:"type:uuid;primaryKey"                                              json:"department_id"`
	SessionID    string `gorm:"type:uuid;not null;uniqueIndex:uq_departments_session_code"       json:"session_id"`
	FacultyID    string `gorm:"type:uuid;not null;index"                                          json:"faculty_id"`
	Code         string `gorm:"type:varchar(50);not null;uniqueIndex:uq_departments_session_code" json:"code"`
	Name         string `gorm:"type:varchar(200);not null"                                        json:"name"`
	BaseModel
}

func (Department) TableName() string { return "departments" }

func (d *Department) BeforeCreate(*gorm.DB) error {
	ensureID(&d.DepartmentID)
	return nil
}

// Programme 专业 — 对应 programmes，所属系为必填父级
type Programme struct {
	ProgrammeID   string `gorm:"type:uuid;primaryKey"                                             json:"programme_id"`
	SessionID     string `gorm:"type:uuid;not null;uniqueIndex:uq_programmes_session_code"       json:"session_id"`
	DepartmentID  string `gorm:"type:uuid;not null;index"                                         json:"department_id"`
	Code          string `gorm:"type:varchar(50);not null;uniqueIndex:uq_programmes_session_code" json:"code"`
	Name          string `gorm:"type:varchar(200);not null"                                       json:"name"`
	DegreeType    string `gorm:"type:varchar(50)"                                                 json:"degree_type,omitempty"`
	DurationYears int    `gorm:"not null;default:4"                                               json:"duration_years"`
	BaseModel
}

func (Programme) TableName() string { return "programmes" }

func (p *Programme) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ProgrammeID)
	return nil
}

// Building 教学楼 — 对应 buildings，所属学院可空
type Building struct {
	BuildingID string  `gorm:"type:uuid;primaryKey"                                            json:"building_id"`
	SessionID  string  `gorm:"type:uuid;not null;uniqueIndex:uq_buildings_session_code"       json:"session_id"`
	FacultyID  *string `gorm:"type:uuid"                                                       json:"faculty_id,omitempty"`
	Code       string  `gorm:"type:varchar(50);not null;uniqueIndex:uq_buildings_session_code" json:"code"`
	Name       string  `gorm:"type:varchar(200);not null"                                      json:"name"`
	BaseModel
}

func (Building) TableName() string { return "buildings" }

func (b *Building) BeforeCreate(*gorm.DB) error {
	ensureID(&b.BuildingID)
	return nil
}

// Room 考场 — 对应 rooms，所属教学楼为必填父级
// exam_capacity ≤ capacity 由规范化步骤保证
type Room struct {
	RoomID            string                      `gorm:"type:uuid;primaryKey"                                        json:"room_id"`
	SessionID         string                      `gorm:"type:uuid;not null;uniqueIndex:uq_rooms_session_code"       json:"session_id"`
	BuildingID        string                      `gorm:"type:uuid;not null;index"                                    json:"building_id"`
	Code              string                      `gorm:"type:varchar(50);not null;uniqueIndex:uq_rooms_session_code" json:"code"`
	Name              string                      `gorm:"type:varchar(200);not null"                                  json:"name"`
	Capacity          int                         `gorm:"not null"                                                    json:"capacity"`
	ExamCapacity      int                         `gorm:"not null"                                                    json:"exam_capacity"`
	RoomType          string                      `gorm:"type:varchar(50)"                                            json:"room_type,omitempty"`
	Floor             *int                        `json:"floor,omitempty"`
	HasComputers      bool                        `gorm:"not null;default:false"                                      json:"has_computers"`
	Accessible        bool                        `gorm:"not null;default:false"                                      json:"accessible"`
	AdjacentRoomCodes datatypes.JSONSlice[string] `gorm:"not null"                                                    json:"adjacent_room_codes"`
	IsActive          bool                        `gorm:"not null"                                                    json:"is_active"`
	BaseModel
}

func (Room) TableName() string { return "rooms" }

func (r *Room) BeforeCreate(*gorm.DB) error {
	ensureID(&r.RoomID)
	return nil
}
