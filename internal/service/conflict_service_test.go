package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-timetable/internal/model"
	"exam-timetable/internal/solver"
)

// crowdedResult 两场考试挤在同一考场同一时段，监考也是同一人
func crowdedResult(r refs) *solver.Result {
	return &solver.Result{
		Assignments: map[string]solver.ExamAssignment{
			r.exams["CSC101"]: {
				Date: "2025-06-09", PeriodIndex: 0,
				Rooms:        []solver.RoomAllocation{{RoomID: r.rooms["R1"], Students: 29}},
				Invigilators: []solver.StaffAllocation{{StaffID: r.staff["S2"]}},
			},
			r.exams["CSC102"]: {
				Date: "2025-06-09", PeriodIndex: 0,
				Rooms:        []solver.RoomAllocation{{RoomID: r.rooms["R1"], Students: 2}},
				Invigilators: []solver.StaffAllocation{{StaffID: r.staff["S2"]}},
			},
		},
	}
}

func TestConflict_StudentConflictNamesBothExams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	v, err := env.repo.Version.GetPrimaryByJob(ctx, env.completedJob(t, sessionID, nil, clashResult(r)))
	require.NoError(t, err)

	list, err := env.svc.Conflict.List(ctx, v.VersionID, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	c := list[0]
	assert.Equal(t, model.ConflictStudent, c.Type)
	assert.Equal(t, model.SeverityHard, c.Severity)
	assert.ElementsMatch(t, []string{r.exams["CSC101"], r.exams["CSC102"]}, c.ExamIDs)
	assert.Equal(t, []string{r.stud["M1"]}, c.StudentIDs)
	assert.Equal(t, "2025-06-09", c.Date)
	assert.Equal(t, 0, c.PeriodIndex)
}

func TestConflict_AllKinds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	v, err := env.repo.Version.GetPrimaryByJob(ctx, env.completedJob(t, sessionID, nil, crowdedResult(r)))
	require.NoError(t, err)

	summary, err := env.svc.Conflict.Summary(ctx, v.VersionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary[model.ConflictStudent])
	assert.EqualValues(t, 1, summary[model.ConflictRoomDoubleBooking])
	assert.EqualValues(t, 1, summary[model.ConflictRoomOverCapacity])
	assert.EqualValues(t, 1, summary[model.ConflictInvigilator])

	over, err := env.svc.Conflict.List(ctx, v.VersionID, model.ConflictRoomOverCapacity)
	require.NoError(t, err)
	require.Len(t, over, 1)
	assert.Equal(t, r.rooms["R1"], over[0].RoomID)
	assert.Equal(t, 30, over[0].Capacity)
	assert.Equal(t, 31, over[0].Headcount)

	inv, err := env.svc.Conflict.List(ctx, v.VersionID, model.ConflictInvigilator)
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.Equal(t, r.staff["S2"], inv[0].StaffID)
}

func TestConflict_RecomputeIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	v, err := env.repo.Version.GetPrimaryByJob(ctx, env.completedJob(t, sessionID, nil, crowdedResult(r)))
	require.NoError(t, err)

	before, err := env.svc.Conflict.List(ctx, v.VersionID, "")
	require.NoError(t, err)

	resp, err := env.svc.Conflict.Recompute(ctx, v.VersionID)
	require.NoError(t, err)
	assert.Equal(t, len(before), resp.Total)

	after, err := env.svc.Conflict.List(ctx, v.VersionID, "")
	require.NoError(t, err)
	var b, a []string
	for _, c := range before {
		b = append(b, c.ID)
	}
	for _, c := range after {
		a = append(a, c.ID)
	}
	assert.ElementsMatch(t, b, a, "同一快照重算得到相同的冲突主键")
}

func TestConflict_RecomputeMany(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.loadedSession(t, "2024/2025-2")
	r := env.refs(t, sessionID)
	v1, err := env.repo.Version.GetPrimaryByJob(ctx, env.completedJob(t, sessionID, nil, clashResult(r)))
	require.NoError(t, err)
	v2, err := env.repo.Version.GetPrimaryByJob(ctx, env.completedJob(t, sessionID, nil, spreadResult(r)))
	require.NoError(t, err)

	out, err := env.svc.Conflict.RecomputeMany(ctx, []string{v1.VersionID, v2.VersionID})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, v1.VersionID, out[0].VersionID)
	assert.Equal(t, 1, out[0].Total)
	assert.Equal(t, 0, out[1].Total)

	_, err = env.svc.Conflict.RecomputeMany(ctx, []string{v1.VersionID, "00000000-0000-0000-0000-000000000000"})
	assert.ErrorIs(t, err, ErrVersionNotFound)
}
