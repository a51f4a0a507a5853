// Package staging 定义暂存区支持的实体种类、各自的行结构与校验。
// 种类是封闭枚举：新增种类必须同时登记行结构与规范化步骤。
package staging

import (
	"errors"
	"fmt"
)

// Kind 暂存实体种类
type Kind string

const (
	KindFaculty             Kind = "faculty"
	KindDepartment          Kind = "department"
	KindBuilding            Kind = "building"
	KindRoom                Kind = "room"
	KindProgramme           Kind = "programme"
	KindStaff               Kind = "staff"
	KindStudent             Kind = "student"
	KindCourse              Kind = "course"
	KindCourseDepartment    Kind = "course_department"
	KindCourseFaculty       Kind = "course_faculty"
	KindCourseInstructor    Kind = "course_instructor"
	KindStaffUnavailability Kind = "staff_unavailability"
	KindRegistration        Kind = "registration"
)

// ErrUnknownKind 不支持的实体种类
var ErrUnknownKind = errors.New("不支持的暂存实体种类")

// Order 规范化顺序，按引用依赖排列
var Order = []Kind{
	KindFaculty,
	KindDepartment,
	KindBuilding,
	KindRoom,
	KindProgramme,
	KindStaff,
	KindStudent,
	KindCourse,
	KindCourseDepartment,
	KindCourseFaculty,
	KindCourseInstructor,
	KindStaffUnavailability,
	KindRegistration,
}

// ParseKind 解析种类字符串
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid 是否为已登记的种类
func (k Kind) Valid() bool {
	_, ok := schemas[k]
	return ok
}

func (k Kind) String() string { return string(k) }
