package staging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPayload 暂存行无法解码为对应种类的结构
var ErrInvalidPayload = errors.New("暂存行格式错误")

// schemas 种类 → 行结构构造函数（静态登记表）
var schemas = map[Kind]func() Row{
	KindFaculty:             func() Row { return &FacultyRow{} },
	KindDepartment:          func() Row { return &DepartmentRow{} },
	KindBuilding:            func() Row { return &BuildingRow{} },
	KindRoom:                func() Row { return &RoomRow{} },
	KindProgramme:           func() Row { return &ProgrammeRow{} },
	KindStaff:               func() Row { return &StaffRow{} },
	KindStudent:             func() Row { return &StudentRow{} },
	KindCourse:              func() Row { return &CourseRow{} },
	KindCourseDepartment:    func() Row { return &CourseDepartmentRow{} },
	KindCourseFaculty:       func() Row { return &CourseFacultyRow{} },
	KindCourseInstructor:    func() Row { return &CourseInstructorRow{} },
	KindStaffUnavailability: func() Row { return &StaffUnavailabilityRow{} },
	KindRegistration:        func() Row { return &RegistrationRow{} },
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 校验问题中的字段名使用 json 名，与上传列名一致
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Issue 行级校验问题
type Issue struct {
	Kind       Kind   `json:"kind"`
	NaturalKey string `json:"natural_key"`
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("%s[%s]: %s", i.Kind, i.NaturalKey, i.Message)
	}
	return fmt.Sprintf("%s[%s].%s: %s", i.Kind, i.NaturalKey, i.Field, i.Message)
}

// NewRow 构造种类对应的空行
func NewRow(k Kind) (Row, error) {
	ctor, ok := schemas[k]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return ctor(), nil
}

// Decode 将原始字段包解码为种类对应的行结构；未知列忽略，字符串两端空白去除
func Decode(k Kind, payload []byte) (Row, error) {
	row, err := NewRow(k)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(row); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, k, err)
	}
	trimStrings(reflect.ValueOf(row).Elem())
	return row, nil
}

// Canonical 行的规范化 JSON，用于比较同一批次内的重复自然键
func Canonical(row Row) ([]byte, error) {
	return json.Marshal(row)
}

// Validate 按 struct tag 校验，返回全部问题；无问题返回 nil
func Validate(k Kind, row Row) []Issue {
	err := validate.Struct(row)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Kind: k, NaturalKey: row.NaturalKey(), Message: err.Error()}}
	}
	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, Issue{
			Kind:       k,
			NaturalKey: row.NaturalKey(),
			Field:      fieldPath(fe),
			Message:    describe(fe),
		})
	}
	return issues
}

// fieldPath 去掉顶层结构名：RoomRow.capacity → capacity
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "必填"
	case "max":
		return "超出最大值/长度 " + fe.Param()
	case "min":
		return "低于最小值/长度 " + fe.Param()
	case "gt":
		return "必须大于 " + fe.Param()
	case "gte":
		return "不能小于 " + fe.Param()
	case "email":
		return "邮箱格式错误"
	case "uuid":
		return "必须是 UUID"
	case "datetime":
		return "日期格式应为 " + fe.Param()
	case "oneof":
		return "取值必须是以下之一: " + fe.Param()
	}
	return fmt.Sprintf("校验失败 (%s %s)", fe.Tag(), fe.Param())
}

func trimStrings(v reflect.Value) {
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.String:
			f.SetString(strings.TrimSpace(f.String()))
		case reflect.Slice:
			if f.Type().Elem().Kind() == reflect.String {
				for j := 0; j < f.Len(); j++ {
					f.Index(j).SetString(strings.TrimSpace(f.Index(j).String()))
				}
			}
		}
	}
}
