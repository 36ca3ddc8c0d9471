package shader

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
)

// watchDebounce collects the burst of events an editor save produces into one change.
const watchDebounce = 100 * time.Millisecond

// Watcher reports edited shader files under a directory. Changes are delivered on a channel the
// render goroutine drains between frames.
type Watcher struct {
	fs      *fsnotify.Watcher
	changes chan []string
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher watches dir and its subdirectories for .wgsl edits.
//
// Parameters:
//   - dir: the shader directory
//
// Returns:
//   - *Watcher: the running watcher, stopped with Close
//   - error: an error if the directory cannot be watched
func NewWatcher(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	})
	if err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		fs:      fw,
		changes: make(chan []string, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Changes delivers the paths of edited shader files, coalesced while the consumer is busy.
func (w *Watcher) Changes() <-chan []string {
	return w.changes
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var pending []string
	timer := time.NewTimer(watchDebounce)
	timer.Stop()

	for {
		select {
		case <-w.done:
			timer.Stop()
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".wgsl") || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if !slices.Contains(pending, ev.Name) {
				pending = append(pending, ev.Name)
			}
			timer.Reset(watchDebounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			common.Logger().Warn("shader watcher error", "error", err)
		case <-timer.C:
			w.deliver(pending)
			pending = nil
		}
	}
}

// deliver hands paths to the consumer, merging them into an undelivered batch.
func (w *Watcher) deliver(paths []string) {
	for {
		select {
		case w.changes <- paths:
			return
		default:
		}
		select {
		case old := <-w.changes:
			for _, p := range old {
				if !slices.Contains(paths, p) {
					paths = append(paths, p)
				}
			}
		default:
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
