package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const watchDebounce = 500 * time.Millisecond

// audioExtensions are the file types picked up from the watch folder.
var audioExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".flac": true,
	".ogg": true, ".opus": true, ".webm": true, ".aac": true, ".mp4": true,
}

// FileWatcher transcribes audio files dropped into a directory. A file is
// removed once its record is stored; failed files stay for inspection.
type FileWatcher struct {
	pipeline *Pipeline
	watchDir string
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
	inProgress     map[string]bool

	filesProcessed atomic.Int64
	filesFailed    atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// NewFileWatcher creates a watcher for dir feeding p.
func NewFileWatcher(p *Pipeline, dir string, log zerolog.Logger) *FileWatcher {
	fw := &FileWatcher{
		pipeline:       p,
		watchDir:       dir,
		log:            log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
		inProgress:     make(map[string]bool),
	}
	fw.status.Store("starting")
	return fw
}

// Start begins watching and processes files already present in the directory.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(fw.watchDir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(fw.watchDir); err != nil {
		w.Close()
		return err
	}
	fw.watcher = w
	fw.ctx, fw.cancel = context.WithCancel(ctx)

	fw.log.Info().Str("watch_dir", fw.watchDir).Msg("file watcher initialized")

	fw.wg.Add(2)
	go fw.watchLoop()
	go fw.backfill()
	return nil
}

// Stop closes the fsnotify watcher and waits for in-flight files.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		fw.watcher.Close()
	}

	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		if t.Stop() {
			fw.wg.Done()
		}
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()

	fw.wg.Wait()
	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_failed", fw.filesFailed.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher state for the health endpoint.
func (fw *FileWatcher) Status() string {
	s, _ := fw.status.Load().(string)
	return s
}

// Stats returns processed and failed file counts.
func (fw *FileWatcher) Stats() (processed, failed int64) {
	return fw.filesProcessed.Load(), fw.filesFailed.Load()
}

func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}
			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// backfill queues audio files that were already in the directory at startup.
func (fw *FileWatcher) backfill() {
	defer fw.wg.Done()
	fw.status.Store("backfilling")

	entries, err := os.ReadDir(fw.watchDir)
	if err != nil {
		fw.log.Warn().Err(err).Msg("backfill read failed")
	}
	queued := 0
	for _, e := range entries {
		if e.IsDir() || !isAudioFile(e.Name()) {
			continue
		}
		fw.scheduleProcess(filepath.Join(fw.watchDir, e.Name()))
		queued++
	}
	if queued > 0 {
		fw.log.Info().Int("files", queued).Msg("backfill queued existing files")
	}

	if fw.ctx.Err() == nil {
		fw.status.Store("watching")
	}
}

// scheduleProcess debounces file processing so that a file still being
// written is read only after events stop for watchDebounce.
func (fw *FileWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if fw.ctx.Err() != nil {
		return
	}
	if t, ok := fw.debounceTimers[path]; ok && t.Stop() {
		t.Reset(watchDebounce)
		return
	}

	// Holding debounceMu until t is assigned keeps the callback from
	// observing a nil timer.
	var t *time.Timer
	fw.wg.Add(1)
	t = time.AfterFunc(watchDebounce, func() {
		defer fw.wg.Done()
		fw.debounceMu.Lock()
		if fw.debounceTimers[path] == t {
			delete(fw.debounceTimers, path)
		}
		busy := fw.inProgress[path]
		fw.inProgress[path] = true
		fw.debounceMu.Unlock()
		if busy {
			return
		}

		fw.processFile(path)

		fw.debounceMu.Lock()
		delete(fw.inProgress, path)
		fw.debounceMu.Unlock()
	})
	fw.debounceTimers[path] = t
}

func (fw *FileWatcher) processFile(path string) {
	if fw.ctx.Err() != nil {
		return
	}
	if _, err := os.Stat(path); err != nil {
		// Already consumed by an earlier event.
		return
	}

	rec, err := fw.pipeline.ProcessFile(fw.ctx, path)
	if err != nil {
		fw.filesFailed.Add(1)
		fw.log.Warn().Err(err).Str("path", path).Msg("watched file transcription failed")
		return
	}
	fw.filesProcessed.Add(1)

	if err := os.Remove(path); err != nil {
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to remove processed file")
	}
	fw.log.Info().Str("path", path).Str("id", rec.ID).Msg("watched file transcribed")
}

func isAudioFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return audioExtensions[strings.ToLower(filepath.Ext(base))]
}
