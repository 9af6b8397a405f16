// Package webhook provides a client for the AI persona webhook backend.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golge-go/internal/config"
)

// 默认的单次请求硬超时。webhook 的中位延迟有好几秒，偶发超时是常态。
const defaultTimeout = 40 * time.Second

// Request 是发送给 webhook 的请求载荷。
// SessionID 复用用户 ID，Room 负责按房间区分同一条记忆线程。
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Room      string `json:"room"`
	Mode      string `json:"mode"` // "shadow" 或 "safe"
	Gender    string `json:"gender"`
}

// reply 覆盖 webhook 可能使用的所有回复字段名。
type reply struct {
	Text     string `json:"text"`
	Response string `json:"response"`
	Message  string `json:"message"`
}

// Content 按约定的优先级取第一个非空字段；全空时返回空串，
// 由调用方决定占位文案。
func (r reply) Content() string {
	for _, v := range []string{r.Text, r.Response, r.Message} {
		if v != "" {
			return v
		}
	}
	return ""
}

// Client 定义了 AI webhook 客户端的接口。
type Client interface {
	// Send 发送一条消息并返回 AI 的回复文本。
	// 网络错误、非 2xx 状态码和超时都以 error 返回；
	// 成功但没有可识别的回复字段时返回空串和 nil。
	Send(ctx context.Context, req Request) (string, error)
	// Timeout 返回单次请求的硬超时时长。
	Timeout() time.Duration
}

type httpClient struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewClient 基于配置创建一个 webhook 客户端。
// 超时通过调用方传入的 context 控制，而不是 http.Client.Timeout，
// 以便请求可以被单独取消。
func NewClient(cfg config.WebhookConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (c *httpClient) Timeout() time.Duration {
	if c.cfg.TimeoutSeconds > 0 {
		return time.Duration(c.cfg.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

func (c *httpClient) Send(ctx context.Context, req Request) (string, error) {
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal webhook request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("webhook returned non-success status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read webhook response: %w", err)
	}

	var r reply
	if err := json.Unmarshal(body, &r); err != nil {
		// 响应不是 JSON：按无法识别处理，交给调用方兜底
		return "", nil
	}
	return r.Content(), nil
}
