package util

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

var ErrUnsupportedUpload = errors.New("unsupported upload")

// SniffUpload 校验上传文件大小并通过文件头嗅探 MIME 类型
// allowedTypes: 允许的 MIME 前缀，如 "image/", "video/"
func SniffUpload(fh *multipart.FileHeader, allowedTypes []string, maxSize int64) (string, error) {
	if fh.Size > maxSize {
		return "", fmt.Errorf("%w: file exceeds %d bytes", ErrUnsupportedUpload, maxSize)
	}

	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	buffer := make([]byte, 512)
	n, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	mimeType := http.DetectContentType(buffer[:n])
	// 部分容器格式嗅探为 octet-stream，按扩展名兜底
	if mimeType == MimeOctetStream && HasVideoExtension(fh.Filename) {
		mimeType = MimeVideo + strings.TrimPrefix(filepath.Ext(fh.Filename), ".")
	}

	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) {
			return mimeType, nil
		}
	}
	return mimeType, fmt.Errorf("%w: %s", ErrUnsupportedUpload, mimeType)
}

func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, MimeVideo)
}

func HasVideoExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedVideoExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
