package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// Purpose определяет каталог и набор допустимых типов файла.
type Purpose string

const (
	PurposeDelivery     Purpose = "deliveries"
	PurposeRequirements Purpose = "requirements"
	PurposeMessage      Purpose = "messages"
)

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds the upload limit")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTypeMismatch    = errors.New("file extension does not match its content")
	ErrUnknownPurpose  = errors.New("unknown upload purpose")
)

var (
	imageTypes    = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
	documentTypes = []string{
		"application/pdf",
		"application/zip",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	}
	// Текст не имеет сигнатуры, его пускаем по расширению.
	textExtensions = map[string]bool{".txt": true, ".md": true, ".csv": true}
)

var allowedMIME = map[Purpose]map[string]bool{
	PurposeDelivery:     setOf(append(append([]string{"application/x-7z-compressed", "application/x-rar-compressed"}, imageTypes...), documentTypes...)...),
	PurposeRequirements: setOf(append(append([]string{}, imageTypes...), documentTypes...)...),
	PurposeMessage:      setOf(append(append([]string{}, imageTypes...), "application/pdf")...),
}

// StoredFile — сохранённый файл. Path относителен корню хранилища.
type StoredFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	MIME string `json:"mime"`
}

// FileStorage — локальное хранилище файлов заказов.
type FileStorage struct {
	rootPath       string
	maxUploadBytes int64
	now            func() time.Time
}

// NewFileStorage создаёт файловое хранилище.
func NewFileStorage(rootPath string, maxUploadMB int64) (*FileStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w", rootPath, err)
	}

	return &FileStorage{
		rootPath:       rootPath,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
		now:            time.Now,
	}, nil
}

// ParsePurpose принимает контекст загрузки из запроса.
func ParsePurpose(raw string) (Purpose, error) {
	switch raw {
	case "delivery", string(PurposeDelivery):
		return PurposeDelivery, nil
	case string(PurposeRequirements):
		return PurposeRequirements, nil
	case "message", string(PurposeMessage):
		return PurposeMessage, nil
	}
	return "", ErrUnknownPurpose
}

// AllowedExtensions возвращает расширения, которые принимаются для purpose.
func AllowedExtensions(purpose Purpose) []string {
	mimes, ok := allowedMIME[purpose]
	if !ok {
		return nil
	}
	var exts []string
	for mime := range mimes {
		filetype.Types.Range(func(_, v interface{}) bool {
			t := v.(types.Type)
			if t.MIME.Value == mime {
				exts = append(exts, "."+t.Extension)
			}
			return true
		})
	}
	for ext := range textExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Save проверяет тип по сигнатуре и сохраняет файл в
// <purpose>/<ownerID>/<name>.
func (s *FileStorage) Save(ctx context.Context, purpose Purpose, ownerID uuid.UUID, originalName string, r io.Reader) (*StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	allowed, ok := allowedMIME[purpose]
	if !ok {
		return nil, ErrUnknownPurpose
	}

	br := bufio.NewReaderSize(r, 8192)
	head, err := br.Peek(8192)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("storage: read header: %w", err)
	}
	if len(head) == 0 {
		return nil, ErrEmptyFile
	}

	safeName := sanitizeFilename(originalName)
	ext := strings.ToLower(filepath.Ext(safeName))
	mime, err := detectMIME(head, ext, allowed)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.rootPath, string(purpose), ownerID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create owner dir: %w", err)
	}

	fileName := fmt.Sprintf("%d_%s", s.now().UnixNano(), safeName)
	targetPath := filepath.Join(dir, fileName)
	tempPath := targetPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("storage: create file: %w", err)
	}
	defer f.Close()

	limited := io.LimitedReader{R: br, N: s.maxUploadBytes + 1}
	written, err := io.Copy(f, &limited)
	if err != nil {
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("storage: write file: %w", err)
	}
	if written > s.maxUploadBytes {
		_ = os.Remove(tempPath)
		return nil, ErrFileTooLarge
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("storage: close file: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		return nil, fmt.Errorf("storage: rename file: %w", err)
	}

	relative := filepath.Join(string(purpose), ownerID.String(), fileName)
	return &StoredFile{Path: filepath.ToSlash(relative), Size: written, MIME: mime}, nil
}

// Open открывает сохранённый файл. Пути вне корня не принимаются.
func (s *FileStorage) Open(relativePath string) (*os.File, error) {
	target, err := s.resolve(relativePath)
	if err != nil {
		return nil, err
	}
	return os.Open(target)
}

// Delete удаляет файл из хранилища.
func (s *FileStorage) Delete(ctx context.Context, relativePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := s.resolve(relativePath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

func (s *FileStorage) resolve(relativePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relativePath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: invalid path %q", relativePath)
	}
	return filepath.Join(s.rootPath, clean), nil
}

func detectMIME(head []byte, ext string, allowed map[string]bool) (string, error) {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		if textExtensions[ext] && utf8.Valid(head) {
			return "text/plain", nil
		}
		return "", ErrUnsupportedType
	}
	if !allowed[kind.MIME.Value] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, kind.MIME.Value)
	}

	expected := "." + kind.Extension
	if ext != expected && !(ext == ".jpeg" && expected == ".jpg") {
		return "", fmt.Errorf("%w: %s is %s", ErrTypeMismatch, ext, expected)
	}
	return kind.MIME.Value, nil
}

// sanitizeFilename удаляет потенциально опасные символы.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" || name == "." {
		name = "file"
	}
	return name
}

func setOf(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
