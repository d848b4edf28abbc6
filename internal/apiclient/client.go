package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"learnbridge_backend/internal/config"
)

const apiVersionPath = "/api/v1"

// ErrTimeout 请求超时。超时的请求可能已在服务端执行成功
var ErrTimeout = errors.New("processing backend request timed out")

// APIError 非 2xx 响应
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("processing backend error (status %d): %s", e.Status, e.Body)
}

// Client 处理后端（动作分析、文本简化、手写分析、邮件、PDF报告、统计）的 REST 客户端
type Client struct {
	baseURL       string
	httpClient    *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration
}

func New(cfg config.APIConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	uploadTimeout := time.Duration(cfg.UploadSeconds) * time.Second
	if uploadTimeout <= 0 {
		uploadTimeout = 60 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/") + apiVersionPath,
		httpClient:    &http.Client{},
		timeout:       timeout,
		uploadTimeout: uploadTimeout,
	}
}

// WithTimeouts 覆盖默认超时
func (c *Client) WithTimeouts(timeout, uploadTimeout time.Duration) *Client {
	c.timeout = timeout
	c.uploadTimeout = uploadTimeout
	return c
}

// File 上传的文件片段
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        io.Reader
}

type SimplifyTextRequest struct {
	Text  string `json:"text"`
	Level string `json:"level,omitempty"`
}

type SimplifyTextResponse struct {
	Original   string   `json:"original"`
	Simplified string   `json:"simplified"`
	Keywords   []string `json:"keywords,omitempty"`
}

type HandwritingResponse struct {
	RecognizedText string   `json:"recognizedText"`
	Legibility     float64  `json:"legibility"`
	LetterIssues   []string `json:"letterIssues,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
}

type MovementResponse struct {
	FramesAnalyzed int      `json:"framesAnalyzed"`
	BalanceScore   float64  `json:"balanceScore"`
	Coordination   float64  `json:"coordination"`
	Observations   []string `json:"observations,omitempty"`
}

type EmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type AdminStats struct {
	ProcessedFrames  int64 `json:"processedFrames"`
	SimplifiedTexts  int64 `json:"simplifiedTexts"`
	HandwritingScans int64 `json:"handwritingScans"`
	ReportsGenerated int64 `json:"reportsGenerated"`
}

func (c *Client) SimplifyText(ctx context.Context, token string, req SimplifyTextRequest) (*SimplifyTextResponse, error) {
	var resp SimplifyTextResponse
	if err := c.postJSON(ctx, token, "/text/simplify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) AnalyzeHandwriting(ctx context.Context, token string, image File) (*HandwritingResponse, error) {
	image.Field = "image"
	var resp HandwritingResponse
	if err := c.upload(ctx, token, "/handwriting/analyze", []File{image}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AnalyzeMovement 上传一组 JPEG 帧
func (c *Client) AnalyzeMovement(ctx context.Context, token string, frames []File) (*MovementResponse, error) {
	for i := range frames {
		frames[i].Field = "frames"
	}
	var resp MovementResponse
	if err := c.upload(ctx, token, "/movement/analyze", frames, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SendEmail(ctx context.Context, token string, req EmailRequest) error {
	return c.postJSON(ctx, token, "/notifications/email", req, nil)
}

// StudentReport 返回 PDF 原始字节
func (c *Client) StudentReport(ctx context.Context, token string, studentID uint) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/reports/students/%d/pdf", studentID), token, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/pdf")
	return c.do(req)
}

func (c *Client) AdminStats(ctx context.Context, token string) (*AdminStats, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/admin/stats", token, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var stats AdminStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("decode admin stats: %w", err)
	}
	return &stats, nil
}

func (c *Client) postJSON(ctx context.Context, token, path string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, token, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, token, path string, files []File, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, f.Data); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, token, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
