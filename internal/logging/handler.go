package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// RedactHandler strips credentials from records before handing them to the
// wrapped handler. String values are run through the sanitizer; attributes
// whose key names a credential (api_key, token, password) are masked whole.
type RedactHandler struct {
	next      slog.Handler
	sanitizer *Sanitizer
}

// NewRedactHandler wraps next.
func NewRedactHandler(next slog.Handler, sanitizer *Sanitizer) *RedactHandler {
	return &RedactHandler{next: next, sanitizer: sanitizer}
}

func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.sanitizer.Sanitize(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redact(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		redacted = append(redacted, h.redact(a))
	}
	return &RedactHandler{next: h.next.WithAttrs(redacted), sanitizer: h.sanitizer}
}

func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{next: h.next.WithGroup(name), sanitizer: h.sanitizer}
}

func (h *RedactHandler) redact(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		members := v.Group()
		redacted := make([]slog.Attr, 0, len(members))
		for _, m := range members {
			redacted = append(redacted, h.redact(m))
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	case slog.KindString:
		if SensitiveKey(a.Key) {
			return slog.String(a.Key, h.sanitizer.placeholder)
		}
		return slog.String(a.Key, h.sanitizer.Sanitize(v.String()))
	case slog.KindAny:
		// Clone and provider errors can carry remote URLs with userinfo.
		if err, ok := v.Any().(error); ok && err != nil {
			return slog.String(a.Key, h.sanitizer.Sanitize(err.Error()))
		}
	}
	return a
}

// PrettyHandler writes colored single-line records for terminals. The stage
// and worker attributes become a "[stage/worker]" prefix so lines from
// parallel workers can be told apart.
type PrettyHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func NewPrettyHandler(w io.Writer, level slog.Leveler) *PrettyHandler {
	return &PrettyHandler{mu: new(sync.Mutex), w: w, level: level}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var (
		scope []string
		tail  strings.Builder
	)
	top := len(h.groups) == 0
	add := func(a slog.Attr) bool {
		if top && (a.Key == KeyStage || a.Key == KeyWorker) {
			scope = append(scope, a.Value.String())
			return true
		}
		h.appendAttr(&tail, a)
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(add)

	var line strings.Builder
	line.WriteString(r.Time.Format("15:04:05"))
	line.WriteByte(' ')
	line.WriteString(h.formatLevel(r.Level))
	line.WriteByte(' ')
	if len(scope) > 0 {
		line.WriteString(colorMagenta + "[" + strings.Join(scope, "/") + "]" + colorReset + " ")
	}
	line.WriteString(r.Message)
	line.WriteString(tail.String())
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(slices.Clip(h.attrs), attrs...)
	return &c
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.groups = append(slices.Clip(h.groups), name)
	return &c
}

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorGray    = "\033[90m"
)

var levelTags = map[slog.Level]string{
	slog.LevelDebug: colorGray + "DBG" + colorReset,
	slog.LevelInfo:  colorBlue + "INF" + colorReset,
	slog.LevelWarn:  colorYellow + "WRN" + colorReset,
	slog.LevelError: colorRed + "ERR" + colorReset,
}

func (h *PrettyHandler) formatLevel(level slog.Level) string {
	if tag, ok := levelTags[level]; ok {
		return tag
	}
	return level.String()
}

func (h *PrettyHandler) appendAttr(b *strings.Builder, a slog.Attr) {
	if a.Value.Kind() == slog.KindGroup {
		for _, m := range a.Value.Group() {
			h.appendAttr(b, m)
		}
		return
	}
	key := a.Key
	if len(h.groups) > 0 {
		key = strings.Join(h.groups, ".") + "." + key
	}
	fmt.Fprintf(b, " %s%s%s=%v", colorCyan, key, colorReset, a.Value.Any())
}
