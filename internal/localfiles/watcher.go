// Package localfiles watches a directory of locally-stored audio files and
// probes their tags, producing LocalFile-kind ids.MediaPath values the
// player can queue directly without a CDN fetch.
package localfiles

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/fsnotify/fsnotify"

	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/ids"
	"github.com/alxayo/streamcore/internal/logger"
)

var supportedExtensions = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".oga":  true,
	".flac": true,
	".m4a":  true,
}

// TrackInfo holds the tag metadata probed from a local audio file.
type TrackInfo struct {
	Path   string
	Title  string
	Artist string
	Album  string
}

// MediaPath builds the ids.MediaPath this track resolves to for playback.
func (t TrackInfo) MediaPath() ids.MediaPath {
	return ids.MediaPath{Kind: ids.MediaPathLocalFile, LocalPath: t.Path}
}

// Watcher watches a root directory for audio files, probing new or changed
// ones and delivering them on Tracks.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	tracks  chan TrackInfo
	done    chan struct{}
}

// New starts watching root (recursively) for audio files, emitting a
// TrackInfo on the returned Watcher's Tracks channel for each.
func New(root string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, rerrors.NewIOError("localfiles.new_watcher", err)
	}

	w := &Watcher{root: root, watcher: fw, tracks: make(chan TrackInfo, 64), done: make(chan struct{})}
	if err := w.addRecursive(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	go w.run()
	return w, nil
}

// Tracks returns the channel of probed local audio files.
func (w *Watcher) Tracks() <-chan TrackInfo { return w.tracks }

// Close stops watching and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.watcher.Add(path)
		}
		if isAudioFile(path) {
			w.probeAndEmit(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Logger().Warnw("localfiles: watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if err := w.watcher.Add(event.Name); err != nil {
			logger.Logger().Warnw("localfiles: failed to watch new directory", "path", event.Name, "error", err)
		}
		return
	}
	if !isAudioFile(event.Name) {
		return
	}
	// Give the writer time to finish before probing tags.
	if !waitForExclusiveOpen(event.Name, 5) {
		return
	}
	w.probeAndEmit(event.Name)
}

func (w *Watcher) probeAndEmit(path string) {
	info, err := probe(path)
	if err != nil {
		logger.Logger().Debugw("localfiles: failed to probe tags", "path", path, "error", err)
		info = TrackInfo{Path: path, Title: filepath.Base(path)}
	}
	select {
	case w.tracks <- info:
	case <-w.done:
	}
}

func probe(path string) (TrackInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return TrackInfo{}, rerrors.NewIOError("localfiles.probe", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return TrackInfo{Path: path, Title: filepath.Base(path)}, nil
	}
	return TrackInfo{Path: path, Title: m.Title(), Artist: m.Artist(), Album: m.Album()}, nil
}

func isAudioFile(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// waitForExclusiveOpen retries opening path read-only a few times, giving a
// concurrent writer time to finish, matching the "try exclusive open, sleep
// on failure" idiom used elsewhere in this corpus for watched-directory
// ingestion.
func waitForExclusiveOpen(path string, attempts int) bool {
	for i := 0; i < attempts; i++ {
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err == nil {
			_ = f.Close()
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}
