package conflict

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-timetable/internal/model"
)

func sampleInput() Input {
	return Input{
		Assignments: []Assignment{
			{AssignmentID: "a1", ExamID: "exam-A", RoomID: "room-1", Date: "2025-06-09", PeriodIndex: 0, Allocated: 30},
			{AssignmentID: "a2", ExamID: "exam-B", RoomID: "room-2", Date: "2025-06-09", PeriodIndex: 0, Allocated: 20},
			{AssignmentID: "a3", ExamID: "exam-C", RoomID: "room-2", Date: "2025-06-09", PeriodIndex: 0, Allocated: 15},
			{AssignmentID: "a4", ExamID: "exam-D", RoomID: "room-1", Date: "2025-06-09", PeriodIndex: 1, Allocated: 10},
		},
		Invigilations: []Invigilation{
			{AssignmentID: "a1", StaffID: "staff-1"},
			{AssignmentID: "a2", StaffID: "staff-1"},
			{AssignmentID: "a4", StaffID: "staff-1"},
			{AssignmentID: "a3", StaffID: "staff-2"},
		},
		ExamStudents: map[string][]string{
			"exam-A": {"s1", "s2"},
			"exam-B": {"s1", "s3"},
			"exam-C": {"s4"},
			"exam-D": {"s1"},
		},
		RoomCapacity: map[string]int{"room-1": 50, "room-2": 30},
	}
}

func TestDetect_AllPasses(t *testing.T) {
	cs, err := Detect(context.Background(), sampleInput())
	require.NoError(t, err)

	summary := Summary(cs)
	assert.Equal(t, 1, summary[model.ConflictStudent])
	assert.Equal(t, 1, summary[model.ConflictRoomOverCapacity])
	assert.Equal(t, 1, summary[model.ConflictRoomDoubleBooking])
	assert.Equal(t, 1, summary[model.ConflictInvigilator])

	for _, c := range cs {
		assert.Equal(t, model.SeverityHard, c.Severity)
		switch c.Type {
		case model.ConflictStudent:
			assert.Equal(t, []string{"exam-A", "exam-B"}, c.Details.ExamIDs)
			assert.Equal(t, []string{"s1"}, c.Details.StudentIDs)
		case model.ConflictRoomOverCapacity:
			assert.Equal(t, "room-2", c.Details.RoomID)
			assert.Equal(t, 35, c.Details.Headcount)
			assert.Equal(t, 30, c.Details.Capacity)
		case model.ConflictInvigilator:
			assert.Equal(t, "staff-1", c.Details.StaffID)
			assert.Equal(t, []string{"exam-A", "exam-B"}, c.Details.ExamIDs)
		}
	}
}

func TestDetect_Deterministic(t *testing.T) {
	first, err := Detect(context.Background(), sampleInput())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Detect(context.Background(), sampleInput())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		assert.True(t, prev.Type < cur.Type || (prev.Type == cur.Type && prev.Fingerprint < cur.Fingerprint))
	}
}

func TestDetect_StudentConflictOnePerExamSet(t *testing.T) {
	// 两场考试、同一批学生、同一时段 → 只有一条冲突，列出全部学生
	in := Input{
		Assignments: []Assignment{
			{AssignmentID: "a1", ExamID: "e1", RoomID: "r1", Date: "2025-06-10", PeriodIndex: 2, Allocated: 2},
			{AssignmentID: "a2", ExamID: "e1", RoomID: "r2", Date: "2025-06-10", PeriodIndex: 2, Allocated: 1},
			{AssignmentID: "a3", ExamID: "e2", RoomID: "r3", Date: "2025-06-10", PeriodIndex: 2, Allocated: 3},
		},
		ExamStudents: map[string][]string{"e1": {"s1", "s2", "s3"}, "e2": {"s3", "s2", "s1"}},
	}
	cs, err := Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, model.ConflictStudent, cs[0].Type)
	assert.Equal(t, []string{"e1", "e2"}, cs[0].Details.ExamIDs)
	assert.Equal(t, []string{"s1", "s2", "s3"}, cs[0].Details.StudentIDs)
}

func TestDetect_NoConflicts(t *testing.T) {
	in := Input{
		Assignments: []Assignment{
			{AssignmentID: "a1", ExamID: "e1", RoomID: "r1", Date: "2025-06-10", PeriodIndex: 0, Allocated: 10},
			{AssignmentID: "a2", ExamID: "e2", RoomID: "r1", Date: "2025-06-10", PeriodIndex: 1, Allocated: 10},
		},
		ExamStudents: map[string][]string{"e1": {"s1"}, "e2": {"s1"}},
		RoomCapacity: map[string]int{"r1": 10},
	}
	cs, err := Detect(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestDetect_StudentFingerprintBounded(t *testing.T) {
	in := Input{ExamStudents: map[string][]string{}, RoomCapacity: map[string]int{}}
	for i := 0; i < 40; i++ {
		examID := fmt.Sprintf("6f1c2a4e-0000-4000-8000-%012d", i)
		roomID := fmt.Sprintf("room-%d", i)
		in.Assignments = append(in.Assignments, Assignment{
			AssignmentID: fmt.Sprintf("a%d", i), ExamID: examID, RoomID: roomID,
			Date: "2025-06-09", PeriodIndex: 0, Allocated: 1,
		})
		in.ExamStudents[examID] = []string{"s1"}
		in.RoomCapacity[roomID] = 10
	}

	cs, err := Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	c := cs[0]
	assert.Equal(t, model.ConflictStudent, c.Type)
	assert.Len(t, c.Details.ExamIDs, 40)
	assert.LessOrEqual(t, len(c.Fingerprint), 64)
	assert.True(t, strings.HasPrefix(c.Fingerprint, "2025-06-09|0|"))

	again, err := Detect(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, c.Fingerprint, again[0].Fingerprint)
}

func TestDetect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Detect(ctx, sampleInput())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestID_Stable(t *testing.T) {
	c := Conflict{Type: model.ConflictStudent, Fingerprint: "2025-06-09|0|exam-A,exam-B"}
	assert.Equal(t, ID("v1", c), ID("v1", c))
	assert.NotEqual(t, ID("v1", c), ID("v2", c))
}
