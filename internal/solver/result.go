package solver

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidResult 求解结果无法解析或不完整
var ErrInvalidResult = errors.New("求解结果格式错误")

// Result 求解器返回的结果；Raw 为原始载荷，原样落库
type Result struct {
	Assignments map[string]ExamAssignment `json:"assignments"`
	Metrics     Metrics                   `json:"metrics"`

	Raw json.RawMessage `json:"-"`
}

// ExamAssignment 单场考试的安排，按 exam id 索引。
// Conflicts 为求解器附带的注解，仅随载荷保存，版本冲突以重新检测为准
type ExamAssignment struct {
	Date         string            `json:"date"`
	PeriodIndex  int               `json:"period_index"`
	Rooms        []RoomAllocation  `json:"rooms"`
	Invigilators []StaffAllocation `json:"invigilators"`
	Conflicts    []json.RawMessage `json:"conflicts,omitempty"`
}

type RoomAllocation struct {
	RoomID   string `json:"room_id"`
	Students int    `json:"students"`
}

// StaffAllocation RoomID 为空时挂到该考试的第一个考场
type StaffAllocation struct {
	StaffID string `json:"staff_id"`
	RoomID  string `json:"room_id,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Metrics 质量指标；未建模的键进入 Extra
type Metrics struct {
	HardViolations int            `json:"hard_violations"`
	SoftViolations int            `json:"soft_violations"`
	Utilization    float64        `json:"utilization"`
	SolveSeconds   float64        `json:"solve_seconds"`
	Extra          map[string]any `json:"-"`
}

var knownMetricKeys = map[string]bool{
	"hard_violations": true,
	"soft_violations": true,
	"utilization":     true,
	"solve_seconds":   true,
}

func (m *Metrics) UnmarshalJSON(data []byte) error {
	type plain Metrics
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, v := range all {
		if knownMetricKeys[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[k] = v
	}
	*m = Metrics(p)
	return nil
}

func (m Metrics) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["hard_violations"] = m.HardViolations
	out["soft_violations"] = m.SoftViolations
	out["utilization"] = m.Utilization
	out["solve_seconds"] = m.SolveSeconds
	return json.Marshal(out)
}

// ParseResult 解析并校验求解结果载荷
func ParseResult(payload []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if r.Assignments == nil {
		return nil, fmt.Errorf("%w: 缺少 assignments", ErrInvalidResult)
	}
	for examID, a := range r.Assignments {
		if examID == "" {
			return nil, fmt.Errorf("%w: 空的 exam id", ErrInvalidResult)
		}
		if _, err := time.Parse("2006-01-02", a.Date); err != nil {
			return nil, fmt.Errorf("%w: exam %s 日期格式错误: %q", ErrInvalidResult, examID, a.Date)
		}
		if a.PeriodIndex < 0 {
			return nil, fmt.Errorf("%w: exam %s 时段编号为负", ErrInvalidResult, examID)
		}
		if len(a.Rooms) == 0 {
			return nil, fmt.Errorf("%w: exam %s 未分配考场", ErrInvalidResult, examID)
		}
		for _, room := range a.Rooms {
			if room.RoomID == "" || room.Students < 0 {
				return nil, fmt.Errorf("%w: exam %s 考场分配无效", ErrInvalidResult, examID)
			}
		}
	}
	r.Raw = append(json.RawMessage(nil), payload...)
	return &r, nil
}
