package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

// Паника в обработчике команды не роняет бота: пользователь получает короткий
// ответ, стек уходит в лог.

type RecoveryConfig struct {
	Logger *slog.Logger
	// UserErrorMessage is the reply after a panic.
	UserErrorMessage string
	// MaxPanicsPerMinute caps logged stack traces during a panic storm.
	MaxPanicsPerMinute int
}

func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		UserErrorMessage:   "Something went wrong. Please try again later.",
		MaxPanicsPerMinute: 100,
	}
}

// PanicInfo describes one recovered panic. Stack is empty when the log
// budget for the minute was spent.
type PanicInfo struct {
	Err        error
	Stack      string
	TelegramID int64
	Command    string
	Timestamp  time.Time
}

type RecoveryResult struct {
	Recovered   bool
	PanicInfo   *PanicInfo
	UserMessage string
}

type RecoveryMiddleware struct {
	message string
	log     *slog.Logger
	traces  *rate.Limiter
}

func NewRecoveryMiddleware(cfg RecoveryConfig) *RecoveryMiddleware {
	def := DefaultRecoveryConfig()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.UserErrorMessage == "" {
		cfg.UserErrorMessage = def.UserErrorMessage
	}
	if cfg.MaxPanicsPerMinute <= 0 {
		cfg.MaxPanicsPerMinute = def.MaxPanicsPerMinute
	}
	return &RecoveryMiddleware{
		message: cfg.UserErrorMessage,
		log:     cfg.Logger.With(logger.Component("bot_recovery")),
		traces:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxPanicsPerMinute)), cfg.MaxPanicsPerMinute),
	}
}

// Run calls handler. Its error passes through untouched; a panic becomes a
// Recovered result with a nil error.
func (m *RecoveryMiddleware) Run(telegramID int64, command string, handler func() error) (res RecoveryResult, err error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		info := &PanicInfo{Err: panicError(v), TelegramID: telegramID, Command: command, Timestamp: time.Now()}
		if m.traces.Allow() {
			info.Stack = string(debug.Stack())
			m.log.Error("panic in command handler",
				logger.TelegramID(telegramID),
				slog.String("command", command),
				logger.Err(info.Err),
				slog.String("stack", info.Stack),
			)
		}
		res, err = RecoveryResult{Recovered: true, PanicInfo: info, UserMessage: m.message}, nil
	}()
	return RecoveryResult{}, handler()
}

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%v", v)
}
