package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"exam-timetable/internal/model"
	"exam-timetable/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoAssignments = errors.New("该版本没有考场安排")
	ErrExportGenerateFail  = errors.New("生成导出文件失败")
	ErrExportNoPublished   = errors.New("该学期会话没有已发布的版本")
	ErrPersonNotFound      = errors.New("学生或教职工不存在")
	ErrPersonType          = errors.New("人员类型只能是 student 或 staff")
)

// 日历导出的人员类型
const (
	PersonStudent = "student"
	PersonStaff   = "staff"
)

const calendarProductID = "-//exam-timetable//exam calendar//ZH"

// ExportService 导出业务接口
//
//   - 版本导出为 Excel：每个考试日一个 Sheet，行为时段，单元格为 考试 @ 考场(人数)
//   - 个人考试日历导出为 .ics：学生按报名考试，教职工按监考安排，取会话的已发布版本
type ExportService interface {
	ExportVersion(ctx context.Context, versionID string) (*bytes.Buffer, string, error)
	ExportCalendar(ctx context.Context, sessionID, personType, personID string) ([]byte, string, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, loc: time.Local, logger: logger}
}

// examSlot 导出用的一场考试在一个考场的安排
type examSlot struct {
	examID   string
	course   string
	title    string
	duration int
	date     string
	period   int
	roomID   string
	room     string
	students int
}

// ═══════════════════════════════════════════════════════════
// ExportVersion 版本导出为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet 名为考试日 "2025-06-09"
//   - 第 1 行标题，第 2 行表头：时段 | 时间 | 安排
//   - 每个时段一行，同一时段的多场考试在单元格内换行

func (s *exportService) ExportVersion(ctx context.Context, versionID string) (*bytes.Buffer, string, error) {
	version, err := getVersion(ctx, s.repo, versionID)
	if err != nil {
		return nil, "", err
	}
	session, err := getSession(ctx, s.repo, version.SessionID)
	if err != nil {
		return nil, "", err
	}
	grid, err := buildGrid(session)
	if err != nil {
		return nil, "", err
	}
	slots, err := s.loadSlots(ctx, version)
	if err != nil {
		return nil, "", err
	}
	if len(slots) == 0 {
		return nil, "", ErrExportNoAssignments
	}

	byDay := make(map[string]map[int][]examSlot)
	var days []string
	for _, sl := range slots {
		if byDay[sl.date] == nil {
			byDay[sl.date] = make(map[int][]examSlot)
			days = append(days, sl.date)
		}
		byDay[sl.date][sl.period] = append(byDay[sl.date][sl.period], sl)
	}
	sort.Strings(days)

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	wrapStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})

	title := fmt.Sprintf("%s 第 %d 版", session.Name, version.VersionNumber)
	for i, day := range days {
		sheet := day
		if i == 0 {
			_ = f.SetSheetName("Sheet1", sheet)
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, "", ErrExportGenerateFail
		}
		_ = f.SetColWidth(sheet, "A", "A", 14)
		_ = f.SetColWidth(sheet, "B", "B", 14)
		_ = f.SetColWidth(sheet, "C", "C", 60)

		_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("%s  %s", title, day))
		_ = f.MergeCell(sheet, "A1", "C1")
		_ = f.SetCellStyle(sheet, "A1", "A1", headerStyle)
		_ = f.SetCellValue(sheet, "A2", "时段")
		_ = f.SetCellValue(sheet, "B2", "时间")
		_ = f.SetCellValue(sheet, "C2", "安排")
		_ = f.SetCellStyle(sheet, "A2", "C2", headerStyle)

		row := 3
		for _, p := range grid.Periods {
			_ = f.SetCellValue(sheet, cell("A", row), p.Name)
			_ = f.SetCellValue(sheet, cell("B", row), p.StartTime+"-"+p.EndTime)
			lines := make([]string, 0, len(byDay[day][p.Index]))
			for _, sl := range byDay[day][p.Index] {
				lines = append(lines, fmt.Sprintf("%s @ %s (%d)", sl.course, sl.room, sl.students))
			}
			text := "-"
			if len(lines) > 0 {
				text = strings.Join(lines, "\n")
			}
			_ = f.SetCellValue(sheet, cell("C", row), text)
			_ = f.SetCellStyle(sheet, cell("C", row), cell("C", row), wrapStyle)
			row++
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.String("version_id", versionID), zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, fmt.Sprintf("考试安排_%s_v%d.xlsx", fileSafe(session.Name), version.VersionNumber), nil
}

// ═══════════════════════════════════════════════════════════
// ExportCalendar 个人考试日历
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportCalendar(ctx context.Context, sessionID, personType, personID string) ([]byte, string, error) {
	session, err := getSession(ctx, s.repo, sessionID)
	if err != nil {
		return nil, "", err
	}
	version, err := s.repo.Version.GetPublished(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrExportNoPublished
		}
		return nil, "", err
	}
	grid, err := buildGrid(session)
	if err != nil {
		return nil, "", err
	}

	var (
		number string
		keep   func(sl examSlot) bool
	)
	switch personType {
	case PersonStudent:
		st, err := s.repo.Production.GetStudent(ctx, personID)
		if err != nil || st.SessionID != sessionID {
			return nil, "", s.personErr(err)
		}
		number = st.MatricNumber
		examIDs, err := s.studentExams(ctx, version.VersionID, personID)
		if err != nil {
			return nil, "", err
		}
		keep = func(sl examSlot) bool { return examIDs[sl.examID] }
	case PersonStaff:
		st, err := s.repo.Production.GetStaff(ctx, personID)
		if err != nil || st.SessionID != sessionID {
			return nil, "", s.personErr(err)
		}
		number = st.StaffNumber
		duties, err := s.staffDuties(ctx, version.VersionID, personID)
		if err != nil {
			return nil, "", err
		}
		keep = func(sl examSlot) bool { return duties[sl.examID+"|"+sl.roomID] }
	default:
		return nil, "", ErrPersonType
	}

	slots, err := s.loadSlots(ctx, version)
	if err != nil {
		return nil, "", err
	}

	// 同一场考试的多个考场合并为一个事件
	type event struct {
		slot  examSlot
		rooms []string
	}
	events := make(map[string]*event)
	var order []string
	for _, sl := range slots {
		if !keep(sl) {
			continue
		}
		ev, ok := events[sl.examID]
		if !ok {
			ev = &event{slot: sl}
			events[sl.examID] = ev
			order = append(order, sl.examID)
		}
		ev.rooms = append(ev.rooms, sl.room)
	}

	periods := make(map[int][2]string, len(grid.Periods))
	for _, p := range grid.Periods {
		periods[p.Index] = [2]string{p.StartTime, p.EndTime}
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName(fmt.Sprintf("%s 考试安排", session.Name))
	stamp := time.Now().UTC()
	if version.PublishedAt != nil {
		stamp = version.PublishedAt.UTC()
	}
	for _, examID := range order {
		ev := events[examID]
		span := periods[ev.slot.period]
		start, err := time.ParseInLocation("2006-01-02 15:04", ev.slot.date+" "+span[0], s.loc)
		if err != nil {
			return nil, "", ErrExportGenerateFail
		}
		end := start.Add(time.Duration(ev.slot.duration) * time.Minute)
		if ev.slot.duration <= 0 {
			if end, err = time.ParseInLocation("2006-01-02 15:04", ev.slot.date+" "+span[1], s.loc); err != nil {
				return nil, "", ErrExportGenerateFail
			}
		}

		vevent := cal.AddEvent(fmt.Sprintf("%s-%s-%s@exam-timetable", version.VersionID, examID, personID))
		vevent.SetDtStampTime(stamp)
		vevent.SetStartAt(start)
		vevent.SetEndAt(end)
		vevent.SetSummary(fmt.Sprintf("%s %s", ev.slot.course, ev.slot.title))
		vevent.SetLocation(strings.Join(ev.rooms, ", "))
		if personType == PersonStaff {
			vevent.SetDescription("监考")
		}
	}

	return []byte(cal.Serialize()), fmt.Sprintf("exams_%s.ics", number), nil
}

func (s *exportService) personErr(err error) error {
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPersonNotFound
	}
	return err
}

// loadSlots 版本的全部考场安排，附带课程代码与考场代码，按日期、时段、课程排序
func (s *exportService) loadSlots(ctx context.Context, version *model.TimetableVersion) ([]examSlot, error) {
	assignments, err := s.repo.Assignment.ListByVersion(ctx, version.VersionID)
	if err != nil {
		return nil, err
	}
	exams, err := s.repo.Production.ListExams(ctx, version.SessionID)
	if err != nil {
		return nil, err
	}
	rooms, err := s.repo.Production.ListRooms(ctx, version.SessionID, false)
	if err != nil {
		return nil, err
	}
	examByID := make(map[string]*model.Exam, len(exams))
	for i := range exams {
		examByID[exams[i].ExamID] = &exams[i]
	}
	roomCode := make(map[string]string, len(rooms))
	for _, r := range rooms {
		roomCode[r.RoomID] = r.Code
	}

	out := make([]examSlot, 0, len(assignments))
	for _, a := range assignments {
		sl := examSlot{
			examID:   a.ExamID,
			course:   a.ExamID,
			date:     model.DateKey(a.ExamDate),
			period:   a.PeriodIndex,
			roomID:   a.RoomID,
			room:     roomCode[a.RoomID],
			students: a.AllocatedCapacity,
		}
		if e := examByID[a.ExamID]; e != nil {
			sl.duration = e.DurationMinutes
			if e.Course != nil {
				sl.course = e.Course.Code
				sl.title = e.Course.Title
			}
		}
		if sl.room == "" {
			sl.room = a.RoomID
		}
		out = append(out, sl)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].date != out[j].date {
			return out[i].date < out[j].date
		}
		if out[i].period != out[j].period {
			return out[i].period < out[j].period
		}
		return out[i].course < out[j].course
	})
	return out, nil
}

func (s *exportService) studentExams(ctx context.Context, versionID, studentID string) (map[string]bool, error) {
	assignments, err := s.repo.Assignment.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	examIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		examIDs = append(examIDs, a.ExamID)
	}
	rosters, err := s.repo.Production.ExamStudents(ctx, examIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for examID, students := range rosters {
		for _, id := range students {
			if id == studentID {
				out[examID] = true
				break
			}
		}
	}
	return out, nil
}

// staffDuties 键为 "exam_id|room_id"，只导出本人监考的考场
func (s *exportService) staffDuties(ctx context.Context, versionID, staffID string) (map[string]bool, error) {
	assignments, err := s.repo.Assignment.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, a := range assignments {
		for _, inv := range a.Invigilators {
			if inv.StaffID == staffID {
				out[a.ExamID+"|"+a.RoomID] = true
			}
		}
	}
	return out, nil
}

// ── 辅助函数 ──

// fileSafe 会话名常含 "2024/2025" 这样的斜杠
var fileSafe = strings.NewReplacer("/", "-", "\\", "-", " ", "_").Replace

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
