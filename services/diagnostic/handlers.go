package diagnostic

import (
	"log"
	"runtime"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Cmd handler

type CmdHandler struct {
	l *zap.Logger
}

func (h *CmdHandler) Error(msg string, err error) {
	h.l.Error(msg, zap.Error(err))
}

func (h *CmdHandler) AlertdStarting(version, commit string) {
	h.l.Info("alertd starting", zap.String("version", version), zap.String("commit", commit))
}

func (h *CmdHandler) GoVersion() {
	h.l.Info("go version", zap.String("version", runtime.Version()))
}

func (h *CmdHandler) Info(msg string) {
	h.l.Info(msg)
}

// Server handler

type ServerHandler struct {
	l *zap.Logger
}

func (h *ServerHandler) Error(msg string, err error) {
	h.l.Error(msg, zap.Error(err))
}

func (h *ServerHandler) Info(msg string) {
	h.l.Info(msg)
}

func (h *ServerHandler) Debug(msg string) {
	h.l.Debug(msg)
}

func (h *ServerHandler) OpenedService(name string) {
	h.l.Debug("opened service", zap.String("name", name))
}

func (h *ServerHandler) ClosedService(name string, err error) {
	if err != nil {
		h.l.Error("error closing service", zap.String("name", name), zap.Error(err))
		return
	}
	h.l.Debug("closed service", zap.String("name", name))
}

// Storage handler

type StorageHandler struct {
	l *zap.Logger
}

func (h *StorageHandler) Error(msg string, err error) {
	h.l.Error(msg, zap.Error(err))
}

func (h *StorageHandler) OpenRetry(path string, err error, wait time.Duration) {
	h.l.Warn("database is locked, retrying", zap.String("path", path), zap.Error(err), zap.Duration("wait", wait))
}

func (h *StorageHandler) Opened(path string) {
	h.l.Info("opened database", zap.String("path", path))
}

// Auth handler

type AuthHandler struct {
	l *zap.Logger
}

func (h *AuthHandler) Error(msg string, err error) {
	h.l.Error(msg, zap.Error(err))
}

func (h *AuthHandler) UserCreated(username string, admin bool) {
	h.l.Info("created user", zap.String("username", username), zap.Bool("admin", admin))
}

func (h *AuthHandler) UserDeleted(username string) {
	h.l.Info("deleted user", zap.String("username", username))
}

func (h *AuthHandler) AuthenticationFailed(username string, err error) {
	h.l.Debug("authentication failed", zap.String("username", username), zap.Error(err))
}

// Alert handler

type AlertHandler struct {
	l *zap.Logger
}

func (h *AlertHandler) Error(msg string, err error, alertID string) {
	h.l.Error(msg, zap.String("alert", alertID), zap.Error(err))
}

func (h *AlertHandler) Decision(username, view, alertID, decision string) {
	h.l.Debug("resolved access",
		zap.String("username", username),
		zap.String("view", view),
		zap.String("alert", alertID),
		zap.String("decision", decision),
	)
}

func (h *AlertHandler) Reconciled(username, alertID string, created bool, creates, updates, deletes int) {
	h.l.Info("reconciled alert",
		zap.String("username", username),
		zap.String("alert", alertID),
		zap.Bool("created", created),
		zap.Int("triggers_created", creates),
		zap.Int("triggers_updated", updates),
		zap.Int("triggers_deleted", deletes),
	)
}

func (h *AlertHandler) ValidationFailed(username, alertID string, err error) {
	h.l.Debug("rejected alert submission", zap.String("username", username), zap.String("alert", alertID), zap.Error(err))
}

func (h *AlertHandler) SubscriptionChanged(username, alertID string, subscribed bool) {
	h.l.Info("subscription changed", zap.String("username", username), zap.String("alert", alertID), zap.Bool("subscribed", subscribed))
}

func (h *AlertHandler) Deleted(username, alertID string) {
	h.l.Info("deleted alert", zap.String("username", username), zap.String("alert", alertID))
}

// HTTPD handler

type HTTPDHandler struct {
	l *zap.Logger
}

func (h *HTTPDHandler) NewHTTPServerErrorLogger() *log.Logger {
	l, err := zap.NewStdLogAt(h.l.With(zap.String("service", "httpd_server_errors")), zapcore.ErrorLevel)
	if err != nil {
		// Only returned for invalid levels.
		return zap.NewStdLog(h.l)
	}
	return l
}

func (h *HTTPDHandler) StartingService() {
	h.l.Info("starting HTTP service")
}

func (h *HTTPDHandler) StoppedService() {
	h.l.Info("closed HTTP service")
}

func (h *HTTPDHandler) ShutdownTimeout() {
	h.l.Error("shutdown timedout, forcefully closing all remaining connections")
}

func (h *HTTPDHandler) AuthenticationEnabled(enabled bool) {
	h.l.Info("authentication", zap.Bool("enabled", enabled))
}

func (h *HTTPDHandler) ListeningOn(addr string, proto string) {
	h.l.Info("listening on", zap.String("addr", addr), zap.String("protocol", proto))
}

func (h *HTTPDHandler) HTTP(
	host string,
	username string,
	start time.Time,
	method string,
	uri string,
	proto string,
	status int,
	referer string,
	userAgent string,
	reqID string,
	duration time.Duration,
) {
	h.l.Info("http request",
		zap.String("host", host),
		zap.String("username", username),
		zap.Time("start", start),
		zap.String("method", method),
		zap.String("uri", uri),
		zap.String("protocol", proto),
		zap.Int("status", status),
		zap.String("referer", referer),
		zap.String("user-agent", userAgent),
		zap.String("request-id", reqID),
		zap.Duration("duration", duration),
	)
}

func (h *HTTPDHandler) RecoveryError(
	msg string,
	err string,
	host string,
	username string,
	start time.Time,
	method string,
	uri string,
	proto string,
	status int,
	referer string,
	userAgent string,
	reqID string,
	duration time.Duration,
) {
	h.l.Error(
		msg,
		zap.String("err", err),
		zap.String("host", host),
		zap.String("username", username),
		zap.Time("start", start),
		zap.String("method", method),
		zap.String("uri", uri),
		zap.String("protocol", proto),
		zap.Int("status", status),
		zap.String("referer", referer),
		zap.String("user-agent", userAgent),
		zap.String("request-id", reqID),
		zap.Duration("duration", duration),
	)
}

func (h *HTTPDHandler) Error(msg string, err error) {
	h.l.Error(msg, zap.Error(err))
}
