// Package audiofile opens a single encoded track/episode file for playback,
// whichever of two sources it lives in: a local cache hit served straight
// off disk, or streamed from the CDN into a growing storage.Storage while
// the decoder consumes it. Either way the caller gets back the same
// decrypted, seekable io.ReadSeeker.
package audiofile

import (
	"context"
	"io"

	"github.com/alxayo/streamcore/internal/cache"
	"github.com/alxayo/streamcore/internal/cdn"
	"github.com/alxayo/streamcore/internal/decrypt"
	"github.com/alxayo/streamcore/internal/ids"
	"github.com/alxayo/streamcore/internal/logger"
	"github.com/alxayo/streamcore/internal/storage"
)

// initialRequestLength bounds the first CDN range request: big enough for a
// decoder to bootstrap without stalling, small enough to minimize latency
// before the first audible sample.
const initialRequestLength = 6 * 1024

// AudioFile is a playable, decrypted source backed by either the local
// cache or an in-flight CDN download.
type AudioFile struct {
	path    ids.MediaPath
	storage *storage.Storage
	cached  bool

	cdnClient *cdn.Client
	cacheDir  *cache.Store
	url       cdn.SignedURL
	fileID    ids.FileId
	cancel    context.CancelFunc
}

// Open resolves path to a playable source: if the cache already has file,
// it is served directly; otherwise the CDN's first range is fetched
// synchronously (so the storage is immediately usable) and the remainder is
// serviced in the background.
func Open(ctx context.Context, path ids.MediaPath, client *cdn.Client, store *cache.Store) (*AudioFile, error) {
	if cachedPath, ok := store.AudioFilePath(path.FileId); ok {
		st, err := storage.FromCompleteFile(cachedPath)
		if err != nil {
			return nil, err
		}
		return &AudioFile{path: path, storage: st, cached: true, cacheDir: store, fileID: path.FileId}, nil
	}

	signed, err := client.ResolveAudioFileURL(ctx, path.FileId)
	if err != nil {
		return nil, err
	}
	logger.Logger().Debugw("resolved cdn url", "file_id", path.FileId.String())

	totalLength, initial, err := client.FetchInitialRange(ctx, signed.URL, initialRequestLength)
	if err != nil {
		return nil, err
	}
	st, err := storage.New(totalLength)
	if err != nil {
		return nil, err
	}
	if _, err := st.Writer().WriteAt(initial, 0); err != nil {
		return nil, err
	}

	svcCtx, cancel := context.WithCancel(context.Background())
	af := &AudioFile{
		path: path, storage: st, cdnClient: client, cacheDir: store,
		url: signed, fileID: path.FileId, cancel: cancel,
	}
	go af.serviceStreaming(svcCtx)
	return af, nil
}

// serviceStreaming drains the storage's request channel, fetching each
// range and re-resolving the signed URL if it has expired, until the
// channel closes (the file is fully downloaded) or ctx is cancelled. On
// completion it promotes the file into the cache.
func (af *AudioFile) serviceStreaming(ctx context.Context) {
	af.cdnClient.ServiceRequests(ctx, af.storage, func(ctx context.Context) (cdn.SignedURL, error) {
		if af.url.Expired() {
			signed, err := af.cdnClient.ResolveAudioFileURL(ctx, af.fileID)
			if err != nil {
				return cdn.SignedURL{}, err
			}
			af.url = signed
		}
		return af.url, nil
	})
	if af.storage.IsComplete() && af.cacheDir != nil {
		if err := af.cacheDir.SaveAudioFile(af.fileID, af.storage.Path()); err != nil {
			logger.Logger().Warnw("failed to promote streamed file to cache", "error", err)
		}
	}
}

// Reader returns a decrypting, seekable reader over the encoded file's
// plaintext bytes.
func (af *AudioFile) Reader(key ids.AudioKey) (io.ReadSeeker, error) {
	return decrypt.NewReader(af.storage.Reader(), key)
}

// Path returns the resolved MediaPath this AudioFile serves.
func (af *AudioFile) Path() ids.MediaPath { return af.path }

// Cached reports whether the file was served straight from the local cache.
func (af *AudioFile) Cached() bool { return af.cached }

// Close stops any in-progress background download.
func (af *AudioFile) Close() {
	if af.cancel != nil {
		af.cancel()
	}
}

