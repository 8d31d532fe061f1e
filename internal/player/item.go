package player

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alxayo/streamcore/internal/audiokey"
	"github.com/alxayo/streamcore/internal/cache"
	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/ids"
	"github.com/alxayo/streamcore/internal/localfiles"
	"github.com/alxayo/streamcore/internal/logger"
	"github.com/alxayo/streamcore/internal/mercury"
	"github.com/alxayo/streamcore/internal/protocol"
)

// mediaSource is the subset of a Session the loading pipeline needs:
// Mercury RPC for metadata, the AudioKey dispatcher for decryption keys,
// and the account's country code for region-restriction checks.
type mediaSource interface {
	Mercury() *mercury.Dispatcher
	AudioKey() *audiokey.Dispatcher
	CountryCode() string
}

// preferredFormatsForBitrate orders the catalog's encoded formats for a
// listener's preferred bitrate: exact matches first, then higher bitrates
// nearest first, then lower bitrates nearest first.
func preferredFormatsForBitrate(bitrate int) []ids.AudioFormat {
	all := []ids.AudioFormat{
		ids.FormatOggVorbis96, ids.FormatOggVorbis160, ids.FormatOggVorbis320,
		ids.FormatMp3256, ids.FormatMp3320, ids.FormatAAC24, ids.FormatAAC48,
	}
	rank := func(f ids.AudioFormat) (group, dist int) {
		b := f.Bitrate()
		switch {
		case b == bitrate:
			return 0, 0
		case b > bitrate:
			return 1, abs(b - bitrate)
		}
		return 2, abs(b - bitrate)
	}
	sort.SliceStable(all, func(i, j int) bool {
		gi, di := rank(all[i])
		gj, dj := rank(all[j])
		return gi < gj || (gi == gj && di < dj)
	})
	return all
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// toMediaPath picks the first of track's encoded files in
// preferredFormatsForBitrate order, returning the resolved MediaPath.
func toMediaPath(track Track, preferredBitrate int) (ids.MediaPath, bool) {
	if len(track.Gid) == 0 || len(track.Files) == 0 {
		return ids.MediaPath{}, false
	}
	byFormat := make(map[ids.AudioFormat]AudioFileRef, len(track.Files))
	for _, f := range track.Files {
		if _, exists := byFormat[f.Format]; !exists {
			byFormat[f.Format] = f
		}
	}
	for _, format := range preferredFormatsForBitrate(preferredBitrate) {
		if f, ok := byFormat[format]; ok {
			return ids.MediaPath{
				Kind:     ids.MediaPathCdn,
				ItemId:   ids.NewItemId(ids.ItemKindTrack, track.Gid),
				FileId:   f.FileId,
				Format:   f.Format,
				Duration: track.Duration,
			}, true
		}
	}
	return ids.MediaPath{}, false
}

func episodeToMediaPath(episode Episode, preferredBitrate int) (ids.MediaPath, bool) {
	if len(episode.Gid) == 0 || len(episode.Files) == 0 {
		return ids.MediaPath{}, false
	}
	byFormat := make(map[ids.AudioFormat]AudioFileRef, len(episode.Files))
	for _, f := range episode.Files {
		if _, exists := byFormat[f.Format]; !exists {
			byFormat[f.Format] = f
		}
	}
	for _, format := range preferredFormatsForBitrate(preferredBitrate) {
		if f, ok := byFormat[format]; ok {
			return ids.MediaPath{
				Kind:     ids.MediaPathCdn,
				ItemId:   ids.NewItemId(ids.ItemKindEpisode, episode.Gid),
				FileId:   f.FileId,
				Format:   f.Format,
				Duration: episode.Duration,
			}, true
		}
	}
	return ids.MediaPath{}, false
}

// loadMediaPathForTrack resolves item to a playable MediaPath, following
// the region-restriction/alternative-track fallback the catalog uses when
// the requested track is unavailable in the account's country.
func loadMediaPathForTrack(ctx context.Context, item ids.ItemId, session mediaSource, store *cache.Store, preferredBitrate int) (ids.MediaPath, error) {
	track, err := loadTrack(ctx, item, session, store)
	if err != nil {
		return ids.MediaPath{}, err
	}

	country := getCountryCode(ctx, session, store)
	if country != "" && track.IsRestrictedIn(country) {
		altID, ok := track.FindAllowedAlternative(country)
		if !ok {
			return ids.MediaPath{}, rerrors.NewMediaFileNotFoundError("player.load_media_path_for_track")
		}
		altTrack, err := loadTrack(ctx, altID, session, store)
		if err != nil {
			return ids.MediaPath{}, err
		}
		path, ok := toMediaPath(altTrack, preferredBitrate)
		if !ok {
			return ids.MediaPath{}, rerrors.NewMediaFileNotFoundError("player.load_media_path_for_track")
		}
		// The caller asked to play item; report it as the playing item even
		// though the bytes come from its regional alternative.
		path.ItemId = item
		return path, nil
	}

	path, ok := toMediaPath(track, preferredBitrate)
	if !ok {
		return ids.MediaPath{}, rerrors.NewMediaFileNotFoundError("player.load_media_path_for_track")
	}
	return path, nil
}

// loadMediaPathFromEpisode resolves a podcast episode's MediaPath. Unlike
// tracks, a restricted episode has no alternative to fall back to.
func loadMediaPathFromEpisode(ctx context.Context, item ids.ItemId, session mediaSource, store *cache.Store, preferredBitrate int) (ids.MediaPath, error) {
	episode, err := loadEpisode(ctx, item, session, store)
	if err != nil {
		return ids.MediaPath{}, err
	}

	country := getCountryCode(ctx, session, store)
	if country != "" && episode.IsRestrictedIn(country) {
		return ids.MediaPath{}, rerrors.NewMediaFileNotFoundError("player.load_media_path_from_episode")
	}

	path, ok := episodeToMediaPath(episode, preferredBitrate)
	if !ok {
		return ids.MediaPath{}, rerrors.NewMediaFileNotFoundError("player.load_media_path_from_episode")
	}
	return path, nil
}

// loadMediaPathFromLocal builds the MediaPath for a file already probed by
// the local-files watcher and registered under item.
func loadMediaPathFromLocal(item ids.ItemId, info localfiles.TrackInfo, duration time.Duration) ids.MediaPath {
	path := info.MediaPath()
	path.ItemId = item
	path.Duration = duration
	return path
}

// loadTrack returns item's track metadata, preferring a cached copy over a
// fresh Mercury fetch and persisting any freshly fetched copy.
func loadTrack(ctx context.Context, item ids.ItemId, session mediaSource, store *cache.Store) (Track, error) {
	var cached Track
	if store.GetTrackMetadata(item, &cached) {
		return cached, nil
	}

	track, err := fetchTrack(ctx, item, session)
	if err != nil {
		return Track{}, err
	}
	if err := store.SaveTrackMetadata(item, &track); err != nil {
		logger.Logger().Warnw("failed to save track metadata to cache", "error", err)
	}
	return track, nil
}

// loadEpisode is loadTrack's sibling for podcast episodes.
func loadEpisode(ctx context.Context, item ids.ItemId, session mediaSource, store *cache.Store) (Episode, error) {
	var cached Episode
	if store.GetEpisodeMetadata(item, &cached) {
		return cached, nil
	}

	episode, err := fetchEpisode(ctx, item, session)
	if err != nil {
		return Episode{}, err
	}
	if err := store.SaveEpisodeMetadata(item, &episode); err != nil {
		logger.Logger().Warnw("failed to save episode metadata to cache", "error", err)
	}
	return episode, nil
}

// loadAudioKey returns the AES key that decrypts path's encoded bytes,
// preferring a cached copy over a fresh access-point request.
func loadAudioKey(ctx context.Context, path ids.MediaPath, session mediaSource, store *cache.Store) (ids.AudioKey, error) {
	if key, ok := store.GetAudioKey(path.ItemId, path.FileId); ok {
		return key, nil
	}

	key, err := session.AudioKey().RequestKey(ctx, path.ItemId, path.FileId)
	if err != nil {
		return ids.AudioKey{}, err
	}
	if err := store.SaveAudioKey(path.ItemId, path.FileId, key); err != nil {
		logger.Logger().Warnw("failed to save audio key to cache", "error", err)
	}
	return key, nil
}

// getCountryCode returns the account's country code, preferring a cached
// value over what the session learned at login, and persisting the latter
// the first time it is observed.
func getCountryCode(ctx context.Context, session mediaSource, store *cache.Store) string {
	if code, ok := store.GetCountryCode(); ok {
		return code
	}
	code := session.CountryCode()
	if code == "" {
		return ""
	}
	if err := store.SaveCountryCode(code); err != nil {
		logger.Logger().Warnw("failed to save country code to cache", "error", err)
	}
	return code
}

func fetchTrack(ctx context.Context, item ids.ItemId, session mediaSource) (Track, error) {
	uri := fmt.Sprintf("hm://metadata/3/track/%s", item.Raw16Hex())
	resp, err := session.Mercury().Request(ctx, "GET", uri, nil)
	if err != nil {
		return Track{}, err
	}
	return parseTrack(concatParts(resp.Parts))
}

func fetchEpisode(ctx context.Context, item ids.ItemId, session mediaSource) (Episode, error) {
	uri := fmt.Sprintf("hm://metadata/3/episode/%s", item.Raw16Hex())
	resp, err := session.Mercury().Request(ctx, "GET", uri, nil)
	if err != nil {
		return Episode{}, err
	}
	return parseEpisode(concatParts(resp.Parts))
}

func concatParts(parts []protocol.MercuryPart) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
