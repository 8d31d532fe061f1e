// Package cache implements the on-disk, last-write-wins persistent cache:
// independently-keyed subdirectories for track/episode metadata, encrypted
// audio file bodies, AES keys, and the account's country code.
package cache

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/ids"
)

const (
	subdirTrack       = "track"
	subdirEpisode     = "episode"
	subdirAudio       = "audio"
	subdirKey         = "key"
	countryCodeFile   = "country_code"
	keyIDPrefixLength = 16
)

// Store is a filesystem-backed cache rooted at a base directory.
type Store struct {
	base string
}

// Open creates (if needed) the cache directory structure rooted at base.
func Open(base string) (*Store, error) {
	for _, sub := range []string{"", subdirTrack, subdirEpisode, subdirAudio, subdirKey} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0o755); err != nil {
			return nil, rerrors.NewIOError("cache.open", err)
		}
	}
	return &Store{base: base}, nil
}

// GetTrackMetadata loads cached track metadata, if present.
func (s *Store) GetTrackMetadata(item ids.ItemId, out any) bool {
	return s.readJSON(s.trackPath(item), out)
}

// SaveTrackMetadata persists track metadata, overwriting any previous entry.
func (s *Store) SaveTrackMetadata(item ids.ItemId, v any) error {
	return s.writeJSON(s.trackPath(item), v)
}

func (s *Store) trackPath(item ids.ItemId) string {
	return filepath.Join(s.base, subdirTrack, item.String())
}

// GetEpisodeMetadata loads cached episode metadata, if present.
func (s *Store) GetEpisodeMetadata(item ids.ItemId, out any) bool {
	return s.readJSON(s.episodePath(item), out)
}

// SaveEpisodeMetadata persists episode metadata, overwriting any previous entry.
func (s *Store) SaveEpisodeMetadata(item ids.ItemId, v any) error {
	return s.writeJSON(s.episodePath(item), v)
}

func (s *Store) episodePath(item ids.ItemId) string {
	return filepath.Join(s.base, subdirEpisode, item.String())
}

// GetAudioKey loads a cached AES key for (item, file), if present.
func (s *Store) GetAudioKey(item ids.ItemId, file ids.FileId) (ids.AudioKey, bool) {
	buf, err := os.ReadFile(s.audioKeyPath(item, file))
	if err != nil || len(buf) != len(ids.AudioKey{}) {
		return ids.AudioKey{}, false
	}
	var key ids.AudioKey
	copy(key[:], buf)
	return key, true
}

// SaveAudioKey persists an AES key for (item, file).
func (s *Store) SaveAudioKey(item ids.ItemId, file ids.FileId, key ids.AudioKey) error {
	if err := os.WriteFile(s.audioKeyPath(item, file), key[:], 0o644); err != nil {
		return rerrors.NewIOError("cache.save_audio_key", err)
	}
	return nil
}

func (s *Store) audioKeyPath(item ids.ItemId, file ids.FileId) string {
	itemPart := item.String()
	if len(itemPart) > keyIDPrefixLength {
		itemPart = itemPart[:keyIDPrefixLength]
	}
	filePart := file.String()
	if len(filePart) > keyIDPrefixLength {
		filePart = filePart[:keyIDPrefixLength]
	}
	return filepath.Join(s.base, subdirKey, itemPart+filePart)
}

// AudioFilePath returns the cache path for file's encoded content, and
// whether it already exists.
func (s *Store) AudioFilePath(file ids.FileId) (string, bool) {
	path := s.audioFilePath(file)
	_, err := os.Stat(path)
	return path, err == nil
}

// SaveAudioFile copies the complete file at fromPath into the cache.
func (s *Store) SaveAudioFile(file ids.FileId, fromPath string) error {
	src, err := os.Open(fromPath)
	if err != nil {
		return rerrors.NewIOError("cache.save_audio_file", err)
	}
	defer src.Close()

	dst, err := os.Create(s.audioFilePath(file))
	if err != nil {
		return rerrors.NewIOError("cache.save_audio_file", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return rerrors.NewIOError("cache.save_audio_file", err)
	}
	return nil
}

func (s *Store) audioFilePath(file ids.FileId) string {
	return filepath.Join(s.base, subdirAudio, file.String())
}

// GetCountryCode returns the cached account country code, if present.
func (s *Store) GetCountryCode() (string, bool) {
	buf, err := os.ReadFile(s.countryCodePath())
	if err != nil {
		return "", false
	}
	return string(buf), true
}

// SaveCountryCode persists the account's country code.
func (s *Store) SaveCountryCode(code string) error {
	if err := os.WriteFile(s.countryCodePath(), []byte(code), 0o644); err != nil {
		return rerrors.NewIOError("cache.save_country_code", err)
	}
	return nil
}

func (s *Store) countryCodePath() string {
	return filepath.Join(s.base, countryCodeFile)
}

func (s *Store) readJSON(path string, out any) bool {
	buf, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(buf, out) == nil
}

func (s *Store) writeJSON(path string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return rerrors.NewIOError("cache.write_json", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return rerrors.NewIOError("cache.write_json", err)
	}
	return nil
}
