package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Options configures the console and file handlers.
type Options struct {
	Dir     string    // log file directory; empty disables the file
	Prefix  string    // console prefix
	Verbose bool      // debug level
	Console io.Writer // defaults to stderr
	Now     func() time.Time
}

// New builds a logger fanning out to a colour console handler and, when
// Dir is set, a text handler on Dir/log_<timestamp>.log. The returned
// close function closes the file.
func New(opts Options) (*slog.Logger, string, func() error, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:        level,
			CustomPrefix: opts.Prefix,
		}),
	}

	closeFn := func() error { return nil }
	var file string
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, "", nil, err
		}
		file = filepath.Join(opts.Dir, "log_"+now().Format("2006-01-02_15-04-05")+".log")
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, "", nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		closeFn = f.Close
	}

	return slog.New(slogmulti.Fanout(handlers...)), file, closeFn, nil
}
