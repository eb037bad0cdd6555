package positions

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"spot_bot/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const indent = "    "

// File: позиции в JSON-файле: {"BTC/USDT": {"buy_price": ..., "amount": ...}}.
type File struct {
	path string
	log  *zap.Logger
	now  func() time.Time
}

func NewFile(path string, log *zap.Logger) *File {
	if log == nil {
		log = zap.NewNop()
	}
	return &File{path: path, log: log, now: time.Now}
}

func (f *File) Path() string { return f.path }

func (f *File) Load(_ context.Context) LoadResult {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return LoadResult{Positions: models.Positions{}, Status: StatusEmpty}
	}
	if err != nil {
		f.log.Error("positions file is unreadable", zap.String("path", f.path), zap.Error(err))
		return LoadResult{Positions: models.Positions{}, Status: StatusCorrupt, Cause: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return LoadResult{Positions: models.Positions{}, Status: StatusEmpty}
	}

	var p models.Positions
	err = sonic.Unmarshal(raw, &p)
	if err == nil {
		err = validate(p)
	}
	if err != nil {
		res := LoadResult{Positions: models.Positions{}, Status: StatusCorrupt, Cause: err}
		res.MovedTo = f.moveAside()
		f.log.Error("positions file is corrupt, starting with empty set",
			zap.String("path", f.path),
			zap.String("moved_to", res.MovedTo),
			zap.Error(err),
		)
		return res
	}
	if p == nil {
		return LoadResult{Positions: models.Positions{}, Status: StatusEmpty}
	}
	return LoadResult{Positions: p, Status: StatusValid}
}

// moveAside сохраняет битый файл рядом, чтобы следующий Save его не затёр.
func (f *File) moveAside() string {
	dst := fmt.Sprintf("%s.corrupt-%d", f.path, f.now().Unix())
	if err := os.Rename(f.path, dst); err != nil {
		f.log.Error("failed to move corrupt positions file", zap.String("path", f.path), zap.Error(err))
		return ""
	}
	return dst
}

// Save пишет во временный файл в той же директории и атомарно переименовывает.
func (f *File) Save(_ context.Context, p models.Positions) error {
	if p == nil {
		p = models.Positions{}
	}
	body, err := sonic.ConfigStd.MarshalIndent(p, "", indent)
	if err != nil {
		return errors.Wrap(err, "encode positions")
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp positions file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write positions")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync positions")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close positions")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.Wrap(err, "replace positions file")
	}
	return nil
}
