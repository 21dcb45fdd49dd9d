package config

import (
	"context"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "pluginlister/pkg/logx"
)

const watchDebounce = 250 * time.Millisecond

// WatchFile calls onChange whenever the content of path changes on disk.
// It watches the parent directory (editors often replace files via rename),
// debounces bursts of events and skips writes that leave the content
// unchanged. It returns when ctx is done.
//
// When fsnotify gets into a bad state the watcher is recreated with a small
// jittered exponential backoff.
func WatchFile(ctx context.Context, path string, log logx.Logger, onChange func()) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		return wait
	}

	var (
		mu       sync.Mutex
		timer    *time.Timer
		lastHash = hashFile(path)
	)
	debounce := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			h := hashFile(path)
			mu.Lock()
			unchanged := h == lastHash
			lastHash = h
			mu.Unlock()
			if unchanged {
				log.Debug("file unchanged; skipping reload", logx.String("path", path))
				return
			}
			if ctx.Err() != nil {
				return
			}
			log.Debug("file changed", logx.String("path", path))
			onChange()
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			log.Warn("watch init failed", logx.Err(err), logx.String("dir", dir))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		backoff = restartBackoffBase
		log.Debug("watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				// Overflow means events may have been missed; reload once.
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					log.Warn("watch overflow; forcing reload", logx.Err(err))
					debounce()
					continue
				}
				log.Warn("watch error", logx.Err(err), logx.String("dir", dir))
			}
		}

		_ = w.Close()
		wait := nextWait()
		log.Warn("watcher stopped; restarting", logx.String("dir", dir), logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func hashFile(path string) uint64 {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
