package logx

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var Logger *slog.Logger

// Init configura o logger JSON no stdout e o deixa como padrão do slog.
func Init(level string) {
	InitWriter(os.Stdout, level)
}

// InitWriter é o Init com saída escolhida (a CLI loga no stderr para não
// misturar com o que imprime no stdout).
func InitWriter(w io.Writer, level string) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel aceita debug|info|warn|error; qualquer outra coisa vira info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
