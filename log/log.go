package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/syslog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the minimum level that will be emitted.
type Level int32

const (
	LevelError Level = iota
	LevelInfo
	LevelTrace
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelInfo:
		return "info"
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// ParseLevel accepts error, info, trace or debug. "warn" maps to error since
// warnings are always printed.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "warn", "warning", "":
		return LevelError, nil
	case "info":
		return LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelError, fmt.Errorf("unknown log level %q", s)
}

var (
	CurLevel  atomic.Int32
	errFile   *os.File
	errLogger *log.Logger
	errMu     sync.Mutex
)

// fanout writes every line to all sinks (stderr, syslog, websocket hub).
type fanout struct {
	mu sync.Mutex
	ws []io.Writer
}

func (m *fanout) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.ws {
		_, _ = w.Write(p)
	}
	return len(p), nil
}

var (
	mu         sync.Mutex
	sinks      = &fanout{ws: []io.Writer{os.Stderr}}
	buf        *bufio.Writer
	logger     *log.Logger
	flushTimer *time.Ticker
	insta      bool
	now        = time.Now
)

// Init sets the primary writer, level, and instaflush behavior. Extra sinks
// attached earlier are dropped.
func Init(w io.Writer, level Level, instaflush bool) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	sinks.mu.Lock()
	sinks.ws = []io.Writer{w}
	sinks.mu.Unlock()
	insta = instaflush
	CurLevel.Store(int32(level))
	rebuildLocked()
}

// Attach adds an extra sink.
func Attach(w io.Writer) {
	if w == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if buf != nil {
		_ = buf.Flush()
	}
	sinks.mu.Lock()
	sinks.ws = append(sinks.ws, w)
	sinks.mu.Unlock()
}

// EnableSyslog connects to the local syslog and attaches it as a sink.
func EnableSyslog(tag string) error {
	sw, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, tag)
	if err != nil {
		return err
	}
	Attach(sw)
	return nil
}

func SetLevel(l Level) { CurLevel.Store(int32(l)) }

func Enabled(l Level) bool { return Level(CurLevel.Load()) >= l }

// SetInstaflush toggles line buffering. Switching to instaflush flushes any
// pending buffered data immediately.
func SetInstaflush(v bool) {
	mu.Lock()
	defer mu.Unlock()
	if insta == v {
		return
	}
	insta = v
	if buf != nil && v {
		_ = buf.Flush()
	}
	rebuildLocked()
}

func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if buf != nil {
		_ = buf.Flush()
	}
}

// InitErrorFile mirrors every Errorf line into path.
func InitErrorFile(path string) error {
	if path == "" {
		return nil
	}
	errMu.Lock()
	defer errMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	errFile = f
	errLogger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return nil
}

func CloseErrorFile() {
	errMu.Lock()
	defer errMu.Unlock()
	if errFile != nil {
		_ = errFile.Sync()
		_ = errFile.Close()
		errFile = nil
		errLogger = nil
	}
}

// ---- printing ------------------------------------------------------------

// Errorf logs unconditionally and returns the formatted message as an error.
// %w is accepted and wraps as in fmt.Errorf.
func Errorf(format string, a ...any) error {
	msg := fmt.Sprintf("[ERROR] "+strings.ReplaceAll(format, "%w", "%v"), a...)
	out("%s", msg)

	errMu.Lock()
	if errLogger != nil {
		errLogger.Println(msg)
		_ = errFile.Sync()
	}
	errMu.Unlock()

	return fmt.Errorf(format, a...)
}

func Warnf(format string, a ...any) {
	out("[WARN] "+format, a...)
}

func Infof(format string, a ...any) {
	if Enabled(LevelInfo) {
		out("[INFO] "+format, a...)
	}
}

func Tracef(format string, a ...any) {
	if Enabled(LevelTrace) {
		out("[TRACE] "+format, a...)
	}
}

func Debugf(format string, a ...any) {
	if Enabled(LevelDebug) {
		out("[DEBUG] "+format, a...)
	}
}

// Event writes one JSON object per line: ts, level, msg, then kv as
// alternating key/value pairs. A trailing key without value is dropped.
func Event(level Level, msg string, kv ...any) {
	if !Enabled(level) {
		return
	}
	var b bytes.Buffer
	b.WriteString(`{"ts":`)
	writeJSON(&b, now().UTC().Format(time.RFC3339Nano))
	b.WriteString(`,"level":`)
	writeJSON(&b, level.String())
	b.WriteString(`,"msg":`)
	writeJSON(&b, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		b.WriteByte(',')
		writeJSON(&b, fmt.Sprint(kv[i]))
		b.WriteByte(':')
		writeJSON(&b, kv[i+1])
	}
	b.WriteString("}\n")

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		rebuildLocked()
	}
	_, _ = logger.Writer().Write(b.Bytes())
}

func writeJSON(b *bytes.Buffer, v any) {
	if err, ok := v.(error); ok {
		v = err.Error()
	}
	enc, err := json.Marshal(v)
	if err != nil {
		enc, _ = json.Marshal(fmt.Sprint(v))
	}
	b.Write(enc)
}

func out(format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		rebuildLocked()
	}
	logger.Printf(format, a...)
}

// ---- internals -----------------------------------------------------------

func rebuildLocked() {
	if insta {
		buf = nil
		logger = log.New(sinks, "", log.Ldate|log.Ltime|log.Lmicroseconds)
		stopFlusherLocked()
		return
	}
	buf = bufio.NewWriterSize(sinks, 16*1024)
	logger = log.New(buf, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	startFlusherLocked()
}

func startFlusherLocked() {
	stopFlusherLocked()
	flushTimer = time.NewTicker(2 * time.Second)
	go func(t *time.Ticker) {
		for range t.C {
			mu.Lock()
			if buf != nil {
				_ = buf.Flush()
			}
			mu.Unlock()
		}
	}(flushTimer)
}

func stopFlusherLocked() {
	if flushTimer != nil {
		flushTimer.Stop()
		flushTimer = nil
	}
}
