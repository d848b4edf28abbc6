package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"learnbridge_backend/internal/apiclient"
	"learnbridge_backend/internal/util"
	"learnbridge_backend/pkg/logger"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const movementFrameCount = 8

// Processor 处理后端客户端
type Processor interface {
	SimplifyText(ctx context.Context, token string, req apiclient.SimplifyTextRequest) (*apiclient.SimplifyTextResponse, error)
	AnalyzeHandwriting(ctx context.Context, token string, image apiclient.File) (*apiclient.HandwritingResponse, error)
	AnalyzeMovement(ctx context.Context, token string, frames []apiclient.File) (*apiclient.MovementResponse, error)
	StudentReport(ctx context.Context, token string, studentID uint) ([]byte, error)
}

type AssistService struct {
	Processor Processor
	Storage   *StorageService
	Access    *AccessPolicy
}

func NewAssistService(processor Processor, storage *StorageService, access *AccessPolicy) *AssistService {
	return &AssistService{Processor: processor, Storage: storage, Access: access}
}

type HandwritingResult struct {
	ImageURL string                         `json:"imageUrl"`
	Analysis *apiclient.HandwritingResponse `json:"analysis"`
}

type MovementResult struct {
	SourceURL string                      `json:"sourceUrl"`
	Frames    int                         `json:"frames"`
	Analysis  *apiclient.MovementResponse `json:"analysis"`
}

type ReportResult struct {
	URL  string `json:"url"`
	Data []byte `json:"-"`
}

func (s *AssistService) SimplifyText(ctx context.Context, session *Session, req apiclient.SimplifyTextRequest) (*apiclient.SimplifyTextResponse, error) {
	if session == nil {
		return nil, util.ErrPermissionDenied
	}
	return s.Processor.SimplifyText(ctx, session.Token, req)
}

// AnalyzeHandwriting 原图先归档到对象存储，再交给后端分析
func (s *AssistService) AnalyzeHandwriting(ctx context.Context, session *Session, fh *multipart.FileHeader) (*HandwritingResult, error) {
	if session == nil {
		return nil, util.ErrPermissionDenied
	}
	mimeType, err := util.SniffUpload(fh, []string{util.MimeImage}, util.MaxHandwritingSize)
	if err != nil {
		return nil, err
	}

	data, err := readUpload(fh)
	if err != nil {
		return nil, err
	}

	objectName := uploadObjectName("handwriting", session.UserID, fh.Filename)
	url, err := s.Storage.Upload(ctx, objectName, bytes.NewReader(data), int64(len(data)), mimeType)
	if err != nil {
		return nil, fmt.Errorf("store handwriting image: %w", err)
	}

	analysis, err := s.Processor.AnalyzeHandwriting(ctx, session.Token, apiclient.File{
		Name:        fh.Filename,
		ContentType: mimeType,
		Data:        bytes.NewReader(data),
	})
	if err != nil {
		return nil, err
	}
	return &HandwritingResult{ImageURL: url, Analysis: analysis}, nil
}

// AnalyzeMovement 接受单帧图片或短视频；视频先用 ffmpeg 抽帧
func (s *AssistService) AnalyzeMovement(ctx context.Context, session *Session, fh *multipart.FileHeader) (*MovementResult, error) {
	if session == nil {
		return nil, util.ErrPermissionDenied
	}
	mimeType, err := util.SniffUpload(fh, []string{util.MimeImage, util.MimeVideo}, util.MaxMovementSize)
	if err != nil {
		return nil, err
	}

	data, err := readUpload(fh)
	if err != nil {
		return nil, err
	}

	objectName := uploadObjectName("movement", session.UserID, fh.Filename)
	url, err := s.Storage.Upload(ctx, objectName, bytes.NewReader(data), int64(len(data)), mimeType)
	if err != nil {
		return nil, fmt.Errorf("store movement upload: %w", err)
	}

	var frames []apiclient.File
	if util.IsVideo(mimeType) {
		frames, err = extractVideoFrames(data, fh.Filename)
		if err != nil {
			return nil, err
		}
	} else {
		frames = []apiclient.File{{Name: fh.Filename, ContentType: mimeType, Data: bytes.NewReader(data)}}
	}

	analysis, err := s.Processor.AnalyzeMovement(ctx, session.Token, frames)
	if err != nil {
		return nil, err
	}
	return &MovementResult{SourceURL: url, Frames: len(frames), Analysis: analysis}, nil
}

func extractVideoFrames(data []byte, filename string) ([]apiclient.File, error) {
	workDir, err := os.MkdirTemp("", "movement-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	videoPath := filepath.Join(workDir, "source"+filepath.Ext(filename))
	if err := os.WriteFile(videoPath, data, 0644); err != nil {
		return nil, err
	}

	paths, err := util.ExtractFrames(videoPath, filepath.Join(workDir, "frames"), movementFrameCount)
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}

	frames := make([]apiclient.File, 0, len(paths))
	for _, p := range paths {
		frame, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		frames = append(frames, apiclient.File{
			Name:        filepath.Base(p),
			ContentType: "image/jpeg",
			Data:        bytes.NewReader(frame),
		})
	}
	return frames, nil
}

// StudentReport 生成学生 PDF 报告并归档；归档失败不影响返回
func (s *AssistService) StudentReport(ctx context.Context, session *Session, studentID uint) (*ReportResult, error) {
	ok, err := s.Access.CanView(ctx, session, studentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.ErrPermissionDenied
	}

	pdf, err := s.Processor.StudentReport(ctx, session.Token, studentID)
	if err != nil {
		return nil, err
	}

	result := &ReportResult{Data: pdf}
	objectName := fmt.Sprintf("reports/%d/%s.pdf", studentID, time.Now().Format("20060102-150405"))
	url, err := s.Storage.Upload(ctx, objectName, bytes.NewReader(pdf), int64(len(pdf)), util.MimePDF)
	if err != nil {
		logger.Log.Warn("Failed to archive report", zap.Uint("studentId", studentID), zap.Error(err))
	} else {
		result.URL = url
	}
	return result, nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func uploadObjectName(kind string, userID uint, filename string) string {
	return fmt.Sprintf("%s/%d/%s%s", kind, userID, uuid.New().String(), filepath.Ext(filename))
}
