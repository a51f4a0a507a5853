package staging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_CoversEveryKind(t *testing.T) {
	seen := make(map[Kind]bool)
	for _, k := range Order {
		assert.False(t, seen[k], "重复的种类 %s", k)
		seen[k] = true
		assert.True(t, k.Valid())
	}
	assert.Len(t, seen, len(schemas))
}

func TestOrder_ParentsBeforeChildren(t *testing.T) {
	pos := make(map[Kind]int)
	for i, k := range Order {
		pos[k] = i
	}
	deps := [][2]Kind{
		{KindFaculty, KindDepartment},
		{KindDepartment, KindProgramme},
		{KindBuilding, KindRoom},
		{KindProgramme, KindStudent},
		{KindDepartment, KindStaff},
		{KindCourse, KindCourseInstructor},
		{KindStaff, KindCourseInstructor},
		{KindStudent, KindRegistration},
		{KindCourse, KindRegistration},
		{KindStaff, KindStaffUnavailability},
	}
	for _, d := range deps {
		assert.Less(t, pos[d[0]], pos[d[1]], "%s 必须先于 %s", d[0], d[1])
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("room")
	require.NoError(t, err)
	assert.Equal(t, KindRoom, k)

	_, err = ParseKind("rooms")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestDecode_TrimsAndIgnoresUnknownColumns(t *testing.T) {
	row, err := Decode(KindRoom, []byte(`{
		"code": " LT1 ", "name": "Lecture Theatre 1", "building_code": "ENG",
		"capacity": 120, "adjacent_room_codes": [" LT2 "], "remarks": "ignored"
	}`))
	require.NoError(t, err)

	room := row.(*RoomRow)
	assert.Equal(t, "LT1", room.Code)
	assert.Equal(t, "LT1", room.NaturalKey())
	assert.Equal(t, []string{"LT2"}, room.AdjacentRoomCodes)
	assert.Nil(t, room.IsActive)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(KindRoom, []byte(`{"capacity": "many"}`))
	assert.True(t, errors.Is(err, ErrInvalidPayload))

	_, err = Decode(Kind("lab"), []byte(`{}`))
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestValidate(t *testing.T) {
	row, err := Decode(KindStudent, []byte(`{"matric_number":"U2020/001","first_name":"Ada","email":"bad","entry_year":2020,"current_level":100}`))
	require.NoError(t, err)

	issues := Validate(KindStudent, row)
	fields := make(map[string]string)
	for _, is := range issues {
		assert.Equal(t, KindStudent, is.Kind)
		assert.Equal(t, "U2020/001", is.NaturalKey)
		fields[is.Field] = is.Message
	}
	assert.Contains(t, fields, "last_name")
	assert.Contains(t, fields, "email")
	assert.Len(t, fields, 2)
}

func TestValidate_Valid(t *testing.T) {
	row, err := Decode(KindStaffUnavailability, []byte(`{"staff_number":"S1","date":"2025-06-09","period_index":1}`))
	require.NoError(t, err)
	assert.Empty(t, Validate(KindStaffUnavailability, row))
	assert.Equal(t, "S1|2025-06-09|1", row.NaturalKey())

	row, err = Decode(KindStaffUnavailability, []byte(`{"staff_number":"S1","date":"09/06/2025"}`))
	require.NoError(t, err)
	issues := Validate(KindStaffUnavailability, row)
	require.Len(t, issues, 1)
	assert.Equal(t, "date", issues[0].Field)
	assert.Equal(t, "S1|09/06/2025|all", row.NaturalKey())
}

func TestValidate_RegistrationType(t *testing.T) {
	row := &RegistrationRow{MatricNumber: "M1", CourseCode: "C1", RegistrationType: "elective"}
	issues := Validate(KindRegistration, row)
	require.Len(t, issues, 1)
	assert.Equal(t, "registration_type", issues[0].Field)

	row.RegistrationType = ""
	assert.Empty(t, Validate(KindRegistration, row))
}

func TestCanonical_IgnoresFormatting(t *testing.T) {
	a, err := Decode(KindFaculty, []byte(`{"code":"ENG","name":"Engineering"}`))
	require.NoError(t, err)
	b, err := Decode(KindFaculty, []byte(`{ "name": "Engineering",  "code": " ENG" }`))
	require.NoError(t, err)

	ca, _ := Canonical(a)
	cb, _ := Canonical(b)
	assert.Equal(t, string(ca), string(cb))
}
