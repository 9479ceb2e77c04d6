// Package blob はアップロード画像の保存を提供する。
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/chirp/internal/model"
)

// MaxImageBytes はアップロード画像1枚あたりの上限サイズ。
const MaxImageBytes = 5 << 20

// Store は画像データの保存インターフェース。
type Store interface {
	// Save は画像データを保存し、配信用の参照パスを返す。
	// categoryは"avatars"や"posts"のような保存先の区分。
	Save(ctx context.Context, category string, data []byte, contentType string) (string, error)
	// Remove は参照パスの画像を削除する。存在しない場合は何もしない。
	Remove(ctx context.Context, ref string) error
}

// 受け付けるContent-Typeと拡張子の対応。
var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// FileStore はローカルファイルシステムへ保存するStoreの実装。
// 参照パスは "/uploads/<category>/<uuid><ext>" の形式で、
// HTTPサーバーが/uploads/配下として配信する。
type FileStore struct {
	dir string
}

// NewFileStore はFileStoreを生成し、保存先ディレクトリを作成する。
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save は画像データを保存し、配信用の参照パスを返す。
func (s *FileStore) Save(_ context.Context, category string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", model.NewInvalidArgumentError("画像データが空です")
	}
	if len(data) > MaxImageBytes {
		return "", model.NewInvalidArgumentError("画像サイズが上限を超えています")
	}
	ext, ok := extByContentType[contentType]
	if !ok {
		return "", model.NewInvalidArgumentError("対応していない画像形式です: " + contentType)
	}

	category = filepath.Base(category)
	name := uuid.NewString() + ext

	dir := filepath.Join(s.dir, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create category dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	return "/uploads/" + category + "/" + name, nil
}

// Remove は参照パスの画像を削除する。
// ストア外を指すパスは無視する。
func (s *FileStore) Remove(_ context.Context, ref string) error {
	rel, ok := strings.CutPrefix(ref, "/uploads/")
	if !ok || rel == "" {
		return nil
	}
	rel = filepath.Clean(rel)
	if strings.HasPrefix(rel, "..") {
		return nil
	}

	if err := os.Remove(filepath.Join(s.dir, rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove image: %w", err)
	}
	return nil
}

// Dir は保存先ディレクトリを返す。HTTPサーバーの静的配信設定用。
func (s *FileStore) Dir() string {
	return s.dir
}
