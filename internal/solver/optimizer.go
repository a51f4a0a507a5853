package solver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ProgressFunc 求解过程中的进度回调
type ProgressFunc func(progress int, phase, message string)

// Optimizer 外部求解器：数据集 → 结果载荷
type Optimizer interface {
	Solve(ctx context.Context, ds *Dataset, progress ProgressFunc) (*Result, error)
}

// Signal 带外控制信号
type Signal string

const (
	SignalPause  Signal = "pause"
	SignalResume Signal = "resume"
	SignalCancel Signal = "cancel"
)

// Signaler 可选能力：向正在运行的求解发送暂停/恢复/取消
type Signaler interface {
	Signal(ctx context.Context, jobID string, sig Signal) error
}

// ErrOptimizerUnavailable 求解服务不可用或返回非 2xx
var ErrOptimizerUnavailable = errors.New("求解服务不可用")

const ndjsonType = "application/x-ndjson"

// HTTPClient 以 HTTP JSON 调用外部求解服务。
//
//	POST {endpoint}/solve               请求体为 Dataset
//	POST {endpoint}/jobs/{id}/{signal}  控制信号
//
// 响应为 application/json 时整体即结果；为 application/x-ndjson 时逐行读取
// {"type":"progress",...} 事件，最后一行 {"type":"result","payload":{...}}。
type HTTPClient struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// NewHTTPClient 创建求解服务客户端；timeout 为单次求解的总超时
func NewHTTPClient(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type streamEvent struct {
	Type     string          `json:"type"`
	Progress int             `json:"progress"`
	Phase    string          `json:"phase"`
	Message  string          `json:"message"`
	Payload  json.RawMessage `json:"payload"`
}

// Solve 提交数据集并等待结果
func (c *HTTPClient) Solve(ctx context.Context, ds *Dataset, progress ProgressFunc) (*Result, error) {
	body, err := json.Marshal(ds)
	if err != nil {
		return nil, fmt.Errorf("序列化数据集失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/solve", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", ndjsonType+", application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOptimizerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrOptimizerUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == ndjsonType {
		return c.readStream(resp.Body, ds.JobID, progress)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取求解结果失败: %w", err)
	}
	return ParseResult(payload)
}

func (c *HTTPClient) readStream(r io.Reader, jobID string, progress ProgressFunc) (*Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			c.logger.Warn("忽略无法解析的求解事件", zap.String("job_id", jobID), zap.Error(err))
			continue
		}
		switch ev.Type {
		case "progress":
			if progress != nil {
				progress(ev.Progress, ev.Phase, ev.Message)
			}
		case "error":
			return nil, fmt.Errorf("求解失败: %s", ev.Message)
		case "result":
			return ParseResult(ev.Payload)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("读取求解事件流失败: %w", err)
	}
	return nil, fmt.Errorf("%w: 事件流在返回结果前结束", ErrInvalidResult)
}

// Signal 发送控制信号
func (c *HTTPClient) Signal(ctx context.Context, jobID string, sig Signal) error {
	u := fmt.Sprintf("%s/jobs/%s/%s", c.endpoint, url.PathEscape(jobID), sig)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOptimizerUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: signal %s status=%d", ErrOptimizerUnavailable, sig, resp.StatusCode)
	}
	return nil
}
