package diagnostic

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service owns the root logger and hands out the handlers
// that implement each service's Diagnostic interface.
type Service struct {
	c Config

	stdout io.Writer
	stderr io.Writer

	mu     sync.Mutex
	closer io.Closer
	level  zap.AtomicLevel
	logger *zap.Logger
}

func NewService(c Config, stdout, stderr io.Writer) *Service {
	return &Service{
		c:      c,
		stdout: stdout,
		stderr: stderr,
		level:  zap.NewAtomicLevel(),
		logger: zap.NewNop(),
	}
}

// NewServiceWithLogger wraps an already built logger, tests use it with an observer core.
func NewServiceWithLogger(l *zap.Logger) *Service {
	return &Service{
		level:  zap.NewAtomicLevelAt(zapcore.DebugLevel),
		logger: l,
	}
}

func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lvl, err := parseLevel(s.c.Level)
	if err != nil {
		return err
	}
	s.level.SetLevel(lvl)

	var w io.Writer
	switch s.c.File {
	case Stdout:
		w = s.stdout
	case Stderr:
		w = s.stderr
	default:
		if err := os.MkdirAll(filepath.Dir(s.c.File), 0755); err != nil {
			return errors.Wrapf(err, "mkdir dirs %q", s.c.File)
		}
		f, err := os.OpenFile(s.c.File, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0640)
		if err != nil {
			return errors.Wrapf(err, "open log file %q", s.c.File)
		}
		w = f
		s.closer = f
	}

	encConfig := zap.NewProductionEncoderConfig()
	encConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch strings.ToLower(s.c.Encoding) {
	case JSONEncoding:
		enc = zapcore.NewJSONEncoder(encConfig)
	case ConsoleEncoding:
		enc = zapcore.NewConsoleEncoder(encConfig)
	default:
		enc = newLogfmtEncoder()
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), s.level)
	s.logger = zap.New(core)
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.logger.Sync()
	if s.closer != nil {
		err := s.closer.Close()
		s.closer = nil
		return err
	}
	return nil
}

// SetLogLevelFromName changes the level of every handler handed out so far.
func (s *Service) SetLogLevelFromName(lvl string) error {
	l, err := parseLevel(lvl)
	if err != nil {
		return err
	}
	s.level.SetLevel(l)
	return nil
}

func (s *Service) Logger() *zap.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

func (s *Service) service(name string) *zap.Logger {
	return s.Logger().With(zap.String("service", name))
}

func (s *Service) NewCmdHandler() *CmdHandler {
	return &CmdHandler{l: s.service("run")}
}

func (s *Service) NewServerHandler() *ServerHandler {
	return &ServerHandler{l: s.service("server")}
}

func (s *Service) NewStorageHandler() *StorageHandler {
	return &StorageHandler{l: s.service("storage")}
}

func (s *Service) NewAuthHandler() *AuthHandler {
	return &AuthHandler{l: s.service("auth")}
}

func (s *Service) NewAlertHandler() *AlertHandler {
	return &AlertHandler{l: s.service("alert")}
}

func (s *Service) NewHTTPDHandler() *HTTPDHandler {
	return &HTTPDHandler{l: s.service("http")}
}
