// Package logging предоставляет slog логгеры для клиента.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/golang-cz/devslog"
	"github.com/phsym/console-slog"
	slogformatter "github.com/samber/slog-formatter"
)

// Format формат вывода логгера
type Format string

const (
	// FormatConsole - однострочный вывод console-slog
	FormatConsole Format = "console"
	// FormatDev - подробный вывод devslog для разработки
	FormatDev Format = "dev"
	// FormatNoop - логирование выключено
	FormatNoop Format = "noop"
)

var newHandler = slogformatter.NewFormatterHandler(
	slogformatter.ErrorFormatter("error"),
	slogformatter.FormatByType(func(u sip.Uri) slog.Value {
		return slog.StringValue(u.String())
	}),
	slogformatter.FormatByType(func(req *sip.Request) slog.Value {
		if req == nil {
			return slog.StringValue("<nil>")
		}
		attrs := []slog.Attr{
			slog.String("method", req.Method.String()),
			slog.String("recipient", req.Recipient.String()),
		}
		if callID := req.CallID(); callID != nil {
			attrs = append(attrs, slog.String("call_id", callID.Value()))
		}
		if cseq := req.CSeq(); cseq != nil {
			attrs = append(attrs, slog.String("cseq", cseq.Value()))
		}
		return slog.GroupValue(attrs...)
	}),
	slogformatter.FormatByType(func(res *sip.Response) slog.Value {
		if res == nil {
			return slog.StringValue("<nil>")
		}
		attrs := []slog.Attr{
			slog.Int("status", res.StatusCode),
			slog.String("reason", res.Reason),
		}
		if cseq := res.CSeq(); cseq != nil {
			attrs = append(attrs, slog.String("cseq", cseq.Value()))
		}
		return slog.GroupValue(attrs...)
	}),
)

// New создает логгер заданного формата, пишущий в w
func New(w io.Writer, format Format, level slog.Leveler) *slog.Logger {
	switch format {
	case FormatNoop:
		return Noop()
	case FormatDev:
		return slog.New(newHandler(
			devslog.NewHandler(w, &devslog.Options{
				HandlerOptions: &slog.HandlerOptions{
					AddSource: true,
					Level:     level,
				},
				SortKeys:   true,
				TimeFormat: time.RFC3339Nano,
			}),
		))
	default:
		return slog.New(newHandler(
			console.NewHandler(w, &console.HandlerOptions{
				AddSource:  true,
				Level:      level,
				TimeFormat: time.RFC3339Nano,
			}),
		))
	}
}

// Default консольный логгер в stdout с уровнем Debug
func Default() *slog.Logger {
	return New(os.Stdout, FormatConsole, slog.LevelDebug)
}

// Dev логгер для разработки в stdout
func Dev() *slog.Logger {
	return New(os.Stdout, FormatDev, slog.LevelDebug)
}

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (noopHandler) Handle(context.Context, slog.Record) error { return nil }

func (h noopHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h noopHandler) WithGroup(string) slog.Handler { return h }

// Noop логгер, который ничего не пишет
func Noop() *slog.Logger {
	return slog.New(noopHandler{})
}

// ParseLevel разбирает имя уровня: debug, info, warn, error.
// Неизвестное имя дает Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
