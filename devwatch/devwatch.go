// Package devwatch rebuilds the client bundle whenever its sources change.
package devwatch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const DefaultDebounce = 10 * time.Second

type Runner interface {
	Run(ctx context.Context) error
}

// ShellRunner runs Command through sh inside Dir.
type ShellRunner struct {
	Command string
	Dir     string
}

func (r ShellRunner) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", r.Command)
	cmd.Dir = r.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", r.Command, err)
	}
	return nil
}

// Watcher runs its Runner once per burst of changes under root. A burst ends
// after debounce without further events.
type Watcher struct {
	root     string
	debounce time.Duration
	runner   Runner
	fsw      *fsnotify.Watcher
	log      zerolog.Logger
}

func New(root string, debounce time.Duration, runner Runner, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     root,
		debounce: debounce,
		runner:   runner,
		fsw:      fsw,
		log:      log.With().Str("component", "devwatch").Logger(),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

// Run blocks until ctx is canceled. Build failures are logged, not returned.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	w.log.Info().Str("root", w.root).Dur("debounce", w.debounce).Msg("watching for changes")

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.log.Warn().Err(err).Str("path", ev.Name).Msg("failed to watch new directory")
					}
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			w.log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("change")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		case <-fire:
			fire = nil
			start := time.Now()
			if err := w.runner.Run(ctx); err != nil {
				w.log.Error().Err(err).Msg("build failed")
				continue
			}
			w.log.Info().Dur("took", time.Since(start)).Msg("build finished")
		}
	}
}
