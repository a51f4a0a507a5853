// Package conflict 对一个排考版本做硬约束冲突检测。
// 纯计算：输入为版本的安排快照，输出为排好序的冲突集合，不访问存储。
package conflict

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"exam-timetable/internal/model"
)

// Assignment 一行考场安排
type Assignment struct {
	AssignmentID string
	ExamID       string
	RoomID       string
	Date         string // 2006-01-02
	PeriodIndex  int
	Allocated    int
}

// Invigilation 一条监考安排
type Invigilation struct {
	AssignmentID string
	StaffID      string
}

// Input 版本快照
type Input struct {
	Assignments   []Assignment
	Invigilations []Invigilation
	ExamStudents  map[string][]string // exam id → 选课学生
	RoomCapacity  map[string]int      // room id → exam_capacity
}

// Conflict 一条检测结果
type Conflict struct {
	Type        string
	Severity    string
	Fingerprint string
	Message     string
	Details     model.ConflictDetails
}

// conflictNS 冲突 ID 的命名空间
var conflictNS = uuid.MustParse("7f1b7c4e-2d7a-4a53-9a4e-5f0c3f6f2b10")

// ID 由 (version, type, fingerprint) 派生确定性主键
func ID(versionID string, c Conflict) string {
	return uuid.NewSHA1(conflictNS, []byte(versionID+"|"+c.Type+"|"+c.Fingerprint)).String()
}

type pass func(in Input) []Conflict

// Detect 并发执行四个检测并合并，按 (type, fingerprint) 排序
func Detect(ctx context.Context, in Input) ([]Conflict, error) {
	passes := []pass{studentConflicts, roomOverCapacity, roomDoubleBooking, invigilatorConflicts}
	results := make([][]Conflict, len(passes))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range passes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = p(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Conflict
	for _, r := range results {
		out = append(out, r...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out, nil
}

// ── 工具 ──

type slot struct {
	date   string
	period int
}

func (s slot) key() string { return s.date + "|" + strconv.Itoa(s.period) }

type roomSlot struct {
	room string
	slot
}

// digest 考试集合的定长摘要，同一时段可能有任意多场考试
func digest(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func sorted(s mapset.Set[string]) []string {
	out := s.ToSlice()
	sort.Strings(out)
	return out
}

// ── 1. 学生同时段多场 ──

func studentConflicts(in Input) []Conflict {
	examsBySlot := make(map[slot]mapset.Set[string])
	for _, a := range in.Assignments {
		s := slot{a.Date, a.PeriodIndex}
		if examsBySlot[s] == nil {
			examsBySlot[s] = mapset.NewThreadUnsafeSet[string]()
		}
		examsBySlot[s].Add(a.ExamID)
	}

	var out []Conflict
	for s, exams := range examsBySlot {
		if exams.Cardinality() < 2 {
			continue
		}
		// 学生 → 本时段的考试
		perStudent := make(map[string]mapset.Set[string])
		for _, examID := range sorted(exams) {
			for _, st := range in.ExamStudents[examID] {
				if perStudent[st] == nil {
					perStudent[st] = mapset.NewThreadUnsafeSet[string]()
				}
				perStudent[st].Add(examID)
			}
		}
		// 按冲突考试集合归并学生
		groups := make(map[string][]string)
		examSets := make(map[string][]string)
		for st, set := range perStudent {
			if set.Cardinality() < 2 {
				continue
			}
			ids := sorted(set)
			k := strings.Join(ids, ",")
			groups[k] = append(groups[k], st)
			examSets[k] = ids
		}
		for k, students := range groups {
			sort.Strings(students)
			out = append(out, Conflict{
				Type:        model.ConflictStudent,
				Severity:    model.SeverityHard,
				Fingerprint: s.key() + "|" + digest(k),
				Message:     fmt.Sprintf("%d 名学生在 %s 第 %d 场同时有 %d 场考试", len(students), s.date, s.period, len(examSets[k])),
				Details: model.ConflictDetails{
					ExamIDs:     examSets[k],
					StudentIDs:  students,
					Date:        s.date,
					PeriodIndex: s.period,
				},
			})
		}
	}
	return out
}

// ── 2. 考场超容量 ──

func roomOverCapacity(in Input) []Conflict {
	load := make(map[roomSlot]int)
	exams := make(map[roomSlot]mapset.Set[string])
	for _, a := range in.Assignments {
		k := roomSlot{a.RoomID, slot{a.Date, a.PeriodIndex}}
		load[k] += a.Allocated
		if exams[k] == nil {
			exams[k] = mapset.NewThreadUnsafeSet[string]()
		}
		exams[k].Add(a.ExamID)
	}

	var out []Conflict
	for k, headcount := range load {
		capacity, ok := in.RoomCapacity[k.room]
		if !ok || headcount <= capacity {
			continue
		}
		out = append(out, Conflict{
			Type:        model.ConflictRoomOverCapacity,
			Severity:    model.SeverityHard,
			Fingerprint: k.room + "|" + k.key(),
			Message:     fmt.Sprintf("考场 %s 在 %s 第 %d 场安排 %d 人，超出考试容量 %d", k.room, k.date, k.period, headcount, capacity),
			Details: model.ConflictDetails{
				ExamIDs:     sorted(exams[k]),
				RoomID:      k.room,
				Date:        k.date,
				PeriodIndex: k.period,
				Capacity:    capacity,
				Headcount:   headcount,
			},
		})
	}
	return out
}

// ── 3. 考场同时段多场 ──

func roomDoubleBooking(in Input) []Conflict {
	exams := make(map[roomSlot]mapset.Set[string])
	for _, a := range in.Assignments {
		k := roomSlot{a.RoomID, slot{a.Date, a.PeriodIndex}}
		if exams[k] == nil {
			exams[k] = mapset.NewThreadUnsafeSet[string]()
		}
		exams[k].Add(a.ExamID)
	}

	var out []Conflict
	for k, set := range exams {
		if set.Cardinality() < 2 {
			continue
		}
		out = append(out, Conflict{
			Type:        model.ConflictRoomDoubleBooking,
			Severity:    model.SeverityHard,
			Fingerprint: k.room + "|" + k.key(),
			Message:     fmt.Sprintf("考场 %s 在 %s 第 %d 场被 %d 场考试占用", k.room, k.date, k.period, set.Cardinality()),
			Details: model.ConflictDetails{
				ExamIDs:     sorted(set),
				RoomID:      k.room,
				Date:        k.date,
				PeriodIndex: k.period,
			},
		})
	}
	return out
}

// ── 4. 监考同时段多场 ──

func invigilatorConflicts(in Input) []Conflict {
	byAssignment := make(map[string]Assignment, len(in.Assignments))
	for _, a := range in.Assignments {
		byAssignment[a.AssignmentID] = a
	}

	type staffSlot struct {
		staff string
		slot
	}
	exams := make(map[staffSlot]mapset.Set[string])
	for _, inv := range in.Invigilations {
		a, ok := byAssignment[inv.AssignmentID]
		if !ok {
			continue
		}
		k := staffSlot{inv.StaffID, slot{a.Date, a.PeriodIndex}}
		if exams[k] == nil {
			exams[k] = mapset.NewThreadUnsafeSet[string]()
		}
		exams[k].Add(a.ExamID)
	}

	var out []Conflict
	for k, set := range exams {
		if set.Cardinality() < 2 {
			continue
		}
		out = append(out, Conflict{
			Type:        model.ConflictInvigilator,
			Severity:    model.SeverityHard,
			Fingerprint: k.staff + "|" + k.key(),
			Message:     fmt.Sprintf("监考人员 %s 在 %s 第 %d 场被安排 %d 场考试", k.staff, k.date, k.period, set.Cardinality()),
			Details: model.ConflictDetails{
				ExamIDs:     sorted(set),
				StaffID:     k.staff,
				Date:        k.date,
				PeriodIndex: k.period,
			},
		})
	}
	return out
}

// Summary 按类型计数
func Summary(cs []Conflict) map[string]int {
	out := make(map[string]int)
	for _, c := range cs {
		out[c.Type]++
	}
	return out
}
