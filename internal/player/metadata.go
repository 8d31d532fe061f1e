package player

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/alxayo/streamcore/internal/ids"
)

// Track field numbers match Spotify's metadata.proto (the same schema
// original_source/psst-core/src/protocol/metadata.rs was generated from).
const (
	trackFieldGid         = 1
	trackFieldDuration    = 7
	trackFieldFile        = 12
	trackFieldAlternative = 13
	trackFieldRestriction = 16
)

const (
	episodeFieldGid         = 1
	episodeFieldDuration    = 7
	episodeFieldFile        = 11
	episodeFieldRestriction = 13
)

const (
	audioFileFieldFileId = 1
	audioFileFieldFormat = 2
)

const (
	restrictionFieldCountriesAllowed   = 5
	restrictionFieldCountriesForbidden = 6
)

// wireAudioFormat maps the raw enum value Spotify sends on the wire to this
// module's ids.AudioFormat. Values per metadata.proto's AudioFile.Format.
func wireAudioFormat(v uint64) ids.AudioFormat {
	switch v {
	case 0:
		return ids.FormatOggVorbis96
	case 1:
		return ids.FormatOggVorbis160
	case 2:
		return ids.FormatOggVorbis320
	case 3:
		return ids.FormatMp3256
	case 4:
		return ids.FormatMp3320
	case 8:
		return ids.FormatAAC24
	case 9:
		return ids.FormatAAC48
	default:
		return ids.FormatUnknown
	}
}

// AudioFileRef is one encoded variant of a track or episode.
type AudioFileRef struct {
	FileId ids.FileId
	Format ids.AudioFormat
}

// Restriction expresses a region allow/deny list for a catalog item.
type Restriction struct {
	CountriesAllowed   string
	CountriesForbidden string
}

// IsRestrictedIn reports whether country (a 2-letter ISO code) is excluded
// by this restriction entry.
func (r Restriction) IsRestrictedIn(country string) bool {
	if r.CountriesAllowed != "" {
		return !countryInList(r.CountriesAllowed, country)
	}
	if r.CountriesForbidden != "" {
		return countryInList(r.CountriesForbidden, country)
	}
	return false
}

func countryInList(list, country string) bool {
	for i := 0; i+1 < len(list); i += 2 {
		if list[i:i+2] == country {
			return true
		}
	}
	return false
}

// Track is the subset of Spotify's track metadata needed to resolve a
// playable MediaPath.
type Track struct {
	Gid          []byte
	Duration     time.Duration
	Files        []AudioFileRef
	Alternatives []Track
	Restrictions []Restriction
}

// IsRestrictedIn reports whether any restriction entry excludes country.
func (t Track) IsRestrictedIn(country string) bool {
	for _, r := range t.Restrictions {
		if r.IsRestrictedIn(country) {
			return true
		}
	}
	return false
}

// FindAllowedAlternative returns the item id of the first alternative track
// not restricted in country, or false if none qualifies.
func (t Track) FindAllowedAlternative(country string) (ids.ItemId, bool) {
	for _, alt := range t.Alternatives {
		if !alt.IsRestrictedIn(country) && len(alt.Gid) > 0 {
			return ids.NewItemId(ids.ItemKindTrack, alt.Gid), true
		}
	}
	return ids.ItemId{}, false
}

// Episode is the subset of Spotify's podcast episode metadata needed to
// resolve a playable MediaPath. Episodes carry no alternative list.
type Episode struct {
	Gid          []byte
	Duration     time.Duration
	Files        []AudioFileRef
	Restrictions []Restriction
}

// IsRestrictedIn reports whether any restriction entry excludes country.
func (e Episode) IsRestrictedIn(country string) bool {
	for _, r := range e.Restrictions {
		if r.IsRestrictedIn(country) {
			return true
		}
	}
	return false
}

// parseTrack decodes a Track message from its raw protobuf wire bytes,
// reading only the fields this player needs and skipping everything else.
func parseTrack(b []byte) (Track, error) {
	var t Track
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Track{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case trackFieldGid:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Track{}, protowire.ParseError(m)
			}
			t.Gid = append([]byte(nil), v...)
			b = b[m:]
		case trackFieldDuration:
			v, m := consumeVarintField(b, typ)
			if m < 0 {
				return Track{}, protowire.ParseError(m)
			}
			t.Duration = time.Duration(v) * time.Millisecond
			b = b[m:]
		case trackFieldFile:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Track{}, protowire.ParseError(m)
			}
			af, err := parseAudioFile(v)
			if err == nil {
				t.Files = append(t.Files, af)
			}
			b = b[m:]
		case trackFieldAlternative:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Track{}, protowire.ParseError(m)
			}
			alt, err := parseTrack(v)
			if err == nil {
				t.Alternatives = append(t.Alternatives, alt)
			}
			b = b[m:]
		case trackFieldRestriction:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Track{}, protowire.ParseError(m)
			}
			t.Restrictions = append(t.Restrictions, parseRestriction(v))
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return Track{}, protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return t, nil
}

// parseEpisode decodes an Episode message the same way parseTrack does.
func parseEpisode(b []byte) (Episode, error) {
	var e Episode
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Episode{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case episodeFieldGid:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Episode{}, protowire.ParseError(m)
			}
			e.Gid = append([]byte(nil), v...)
			b = b[m:]
		case episodeFieldDuration:
			v, m := consumeVarintField(b, typ)
			if m < 0 {
				return Episode{}, protowire.ParseError(m)
			}
			e.Duration = time.Duration(v) * time.Millisecond
			b = b[m:]
		case episodeFieldFile:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Episode{}, protowire.ParseError(m)
			}
			af, err := parseAudioFile(v)
			if err == nil {
				e.Files = append(e.Files, af)
			}
			b = b[m:]
		case episodeFieldRestriction:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Episode{}, protowire.ParseError(m)
			}
			e.Restrictions = append(e.Restrictions, parseRestriction(v))
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return Episode{}, protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return e, nil
}

func parseAudioFile(b []byte) (AudioFileRef, error) {
	var af AudioFileRef
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return AudioFileRef{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case audioFileFieldFileId:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return AudioFileRef{}, protowire.ParseError(m)
			}
			if len(v) == len(af.FileId) {
				copy(af.FileId[:], v)
			}
			b = b[m:]
		case audioFileFieldFormat:
			v, m := consumeVarintField(b, typ)
			if m < 0 {
				return AudioFileRef{}, protowire.ParseError(m)
			}
			af.Format = wireAudioFormat(v)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return AudioFileRef{}, protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return af, nil
}

func parseRestriction(b []byte) Restriction {
	var r Restriction
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			break
		}
		b = b[n:]

		switch num {
		case restrictionFieldCountriesAllowed:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return r
			}
			r.CountriesAllowed = string(v)
			b = b[m:]
		case restrictionFieldCountriesForbidden:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return r
			}
			r.CountriesForbidden = string(v)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return r
			}
			b = b[m:]
		}
	}
	return r
}

func consumeVarintField(b []byte, typ protowire.Type) (uint64, int) {
	if typ != protowire.VarintType {
		return 0, protowire.ConsumeFieldValue(0, typ, b)
	}
	return protowire.ConsumeVarint(b)
}
