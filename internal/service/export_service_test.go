package service

import (
	"bytes"
	"context"
	"testing"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// ── ExportVersion ──

func TestExport_VersionWorkbookPerDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)

	jobID := env.completedJob(t, sessionID, nil, spreadResult(r))
	v, err := env.svc.Version.Publish(ctx, jobID, testActor, "")
	require.NoError(t, err)

	buf, filename, err := env.svc.Export.ExportVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "考试安排_2024-2025-2_v1.xlsx", filename)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"2025-06-09", "2025-06-10"}, f.GetSheetList())

	header, _ := f.GetCellValue("2025-06-09", "C2")
	assert.Equal(t, "安排", header)
	morning, _ := f.GetCellValue("2025-06-09", "C3")
	assert.Equal(t, "CSC101 @ R1 (2)", morning)
	afternoon, _ := f.GetCellValue("2025-06-09", "C4")
	assert.Equal(t, "-", afternoon)

	span, _ := f.GetCellValue("2025-06-10", "B4")
	assert.Equal(t, "14:00-17:00", span)
	later, _ := f.GetCellValue("2025-06-10", "C4")
	assert.Equal(t, "CSC102 @ R2 (1)", later)
}

func TestExport_VersionSameSlotJoined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2025春")
	r := env.refs(t, sessionID)

	jobID := env.completedJob(t, sessionID, nil, clashResult(r))
	v, err := env.svc.Version.Publish(ctx, jobID, testActor, "")
	require.NoError(t, err)

	buf, _, err := env.svc.Export.ExportVersion(ctx, v.ID)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"2025-06-09"}, f.GetSheetList())
	text, _ := f.GetCellValue("2025-06-09", "C3")
	assert.Equal(t, "CSC101 @ R1 (2)\nCSC102 @ R2 (1)", text)
}

func TestExport_VersionNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.svc.Export.ExportVersion(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

// ── ExportCalendar ──

func parseCalendar(t *testing.T, data []byte) *ics.Calendar {
	t.Helper()
	cal, err := ics.ParseCalendar(bytes.NewReader(data))
	require.NoError(t, err)
	return cal
}

func summaries(cal *ics.Calendar) []string {
	var out []string
	for _, ev := range cal.Events() {
		if p := ev.GetProperty(ics.ComponentPropertySummary); p != nil {
			out = append(out, p.Value)
		}
	}
	return out
}

func TestExport_CalendarStudent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2025春")
	r := env.refs(t, sessionID)

	jobID := env.completedJob(t, sessionID, nil, spreadResult(r))
	_, err := env.svc.Version.Publish(ctx, jobID, testActor, "")
	require.NoError(t, err)

	data, filename, err := env.svc.Export.ExportCalendar(ctx, sessionID, PersonStudent, r.stud["M1"])
	require.NoError(t, err)
	assert.Equal(t, "exams_M1.ics", filename)
	assert.ElementsMatch(t, []string{"CSC101 程序设计", "CSC102 数据结构"}, summaries(parseCalendar(t, data)))

	data, _, err = env.svc.Export.ExportCalendar(ctx, sessionID, PersonStudent, r.stud["M2"])
	require.NoError(t, err)
	assert.Equal(t, []string{"CSC101 程序设计"}, summaries(parseCalendar(t, data)))

	// 未报名任何考试的学生得到空日历
	data, _, err = env.svc.Export.ExportCalendar(ctx, sessionID, PersonStudent, r.stud["M3"])
	require.NoError(t, err)
	assert.Empty(t, parseCalendar(t, data).Events())
}

func TestExport_CalendarStaffDuties(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2025春")
	r := env.refs(t, sessionID)

	jobID := env.completedJob(t, sessionID, nil, clashResult(r))
	_, err := env.svc.Version.Publish(ctx, jobID, testActor, "")
	require.NoError(t, err)

	data, filename, err := env.svc.Export.ExportCalendar(ctx, sessionID, PersonStaff, r.staff["S2"])
	require.NoError(t, err)
	assert.Equal(t, "exams_S2.ics", filename)

	events := parseCalendar(t, data).Events()
	require.Len(t, events, 1)
	assert.Equal(t, "CSC101 程序设计", events[0].GetProperty(ics.ComponentPropertySummary).Value)
	assert.Equal(t, "R1", events[0].GetProperty(ics.ComponentPropertyLocation).Value)
	assert.Equal(t, "监考", events[0].GetProperty(ics.ComponentPropertyDescription).Value)

	data, _, err = env.svc.Export.ExportCalendar(ctx, sessionID, PersonStaff, r.staff["S1"])
	require.NoError(t, err)
	assert.Empty(t, parseCalendar(t, data).Events())
}

func TestExport_CalendarErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2025春")
	r := env.refs(t, sessionID)

	// 已完成但未发布
	env.completedJob(t, sessionID, nil, spreadResult(r))
	_, _, err := env.svc.Export.ExportCalendar(ctx, sessionID, PersonStudent, r.stud["M1"])
	assert.ErrorIs(t, err, ErrExportNoPublished)

	jobID := env.completedJob(t, sessionID, nil, spreadResult(r))
	_, err = env.svc.Version.Publish(ctx, jobID, testActor, "")
	require.NoError(t, err)

	tests := []struct {
		name       string
		personType string
		personID   string
		want       error
	}{
		{"未知人员类型", "guest", r.staff["S1"], ErrPersonType},
		{"学生不存在", PersonStudent, "00000000-0000-0000-0000-000000000000", ErrPersonNotFound},
		{"教职工编号当作学生", PersonStudent, r.staff["S1"], ErrPersonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.svc.Export.ExportCalendar(ctx, sessionID, tt.personType, tt.personID)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// 其他会话的学生
	other := env.loadedSession(t, "2025秋")
	ro := env.refs(t, other)
	_, _, err = env.svc.Export.ExportCalendar(ctx, sessionID, PersonStudent, ro.stud["M1"])
	assert.ErrorIs(t, err, ErrPersonNotFound)
}
