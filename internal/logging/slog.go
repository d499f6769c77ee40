package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

var osStdout io.Writer = os.Stdout

// Config selects the log sinks.
type Config struct {
	Level string
	// File receives text logs, typically a rotating file from NewRotatingFile.
	File io.Writer
	// Console forces stdout output even when File is set.
	Console bool
	// GELFAddr is a Graylog UDP address (host:port); empty disables GELF.
	GELFAddr string
	// Provider enables the OTel log bridge when non-nil.
	Provider *sdklog.LoggerProvider
	// Context adds simulator state to every record.
	Context ContextProvider
}

// SlogManager owns the process logger and the sinks behind it. Setup may
// be called again to swap sinks while other goroutines keep logging.
type SlogManager struct {
	logger atomic.Pointer[slog.Logger]

	mu       sync.Mutex
	provider *sdklog.LoggerProvider
	gelf     *gelf.Writer
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel accepts slog level names in any case ("debug", "WARN",
// "error+2") plus "warning". Anything else is info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
	}
	return a
}

// Setup builds the logger from cfg. Stdout is used when no file is given
// or when cfg.Console is set. A Graylog writer from an earlier Setup is
// closed once the new logger is in place.
func (m *SlogManager) Setup(cfg Config) error {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), ReplaceAttr: utcTime}

	var sinks []slog.Handler
	if cfg.File == nil || cfg.Console {
		sinks = append(sinks, slog.NewTextHandler(osStdout, opts))
	}
	if cfg.File != nil {
		sinks = append(sinks, slog.NewTextHandler(cfg.File, opts))
	}

	var gw *gelf.Writer
	if cfg.GELFAddr != "" {
		w, err := gelf.NewWriter(cfg.GELFAddr)
		if err != nil {
			return fmt.Errorf("creating GELF writer for %s: %w", cfg.GELFAddr, err)
		}
		gw = w
		sinks = append(sinks, slog.NewJSONHandler(w, opts))
	}
	if cfg.Provider != nil {
		sinks = append(sinks, otelslog.NewHandler("asvsim", otelslog.WithLoggerProvider(cfg.Provider)))
	}

	logger := slog.New(newStateHandler(newFanout(sinks...), cfg.Context))

	m.mu.Lock()
	old := m.gelf
	m.gelf = gw
	m.provider = cfg.Provider
	m.logger.Store(logger)
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	logger.Info("Logging initialized", "level", cfg.Level, "gelf", gw != nil, "otel", cfg.Provider != nil)
	return nil
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if l := m.logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// Flush pushes buffered OTel records to their exporter.
func (m *SlogManager) Flush(ctx context.Context) error {
	m.mu.Lock()
	p := m.provider
	m.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.ForceFlush(ctx)
}

// Close releases the Graylog connection. It is safe to call more than once.
func (m *SlogManager) Close() error {
	m.mu.Lock()
	w := m.gelf
	m.gelf = nil
	m.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

// WriteLog logs data at the named level, tagged with the function that
// produced it. It does nothing before Setup.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	l := m.logger.Load()
	if l == nil {
		return
	}
	l.Log(context.Background(), parseLevel(level), data, "function", functionName)
}
