// Package player implements the single-worker playback actor: it owns the
// queue, the currently loaded and preloaded items, and drives the loading
// pipeline (metadata resolution -> audio key -> decode -> DSP chain) that
// turns a queued ItemId into sound coming out of an OutputSink.
package player

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alxayo/streamcore/internal/audiofile"
	"github.com/alxayo/streamcore/internal/cache"
	"github.com/alxayo/streamcore/internal/cdn"
	"github.com/alxayo/streamcore/internal/decode"
	"github.com/alxayo/streamcore/internal/dsp"
	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/ids"
	"github.com/alxayo/streamcore/internal/localfiles"
	"github.com/alxayo/streamcore/internal/logger"
	"github.com/alxayo/streamcore/internal/output"
	"github.com/alxayo/streamcore/internal/player/hooks"
	"github.com/alxayo/streamcore/internal/queue"
)

// feedChunkSize is how much decoded PCM the feeder pulls from the decoder
// per iteration before running it through the DSP chain.
const feedChunkSize = 4096

// preloadThreshold is how much of the current item must remain before the
// worker starts loading the item that will follow it.
const preloadThreshold = 15 * time.Second

// previousTrackRestartThreshold bounds PrevTrack's "seek to start vs skip
// back" behavior: past this much playback, Previous calls handleSeek(0)
// instead of moving the queue position backward. handleSeek only reports the
// new position; the decoder is not repositioned and audio carries on.
const previousTrackRestartThreshold = 3 * time.Second

// PlaybackState is the player's coarse lifecycle state.
type PlaybackState int

const (
	Stopped PlaybackState = iota
	Loading
	Playing
	Paused
)

func (s PlaybackState) String() string {
	switch s {
	case Loading:
		return "Loading"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// Command is a request sent to the player worker.
type Command struct {
	Kind     CommandKind
	Items    []queue.Item
	Position int
	Seek     time.Duration
	Volume   float64
	Behavior queue.Behavior
}

// CommandKind enumerates the player's command variants.
type CommandKind int

const (
	CmdLoadQueue CommandKind = iota
	CmdPlay
	CmdPause
	CmdResume
	CmdPrevTrack
	CmdNextTrack
	CmdSeek
	CmdStop
	CmdSetVolume
	CmdConfigure
)

// EventKind enumerates the player's event variants.
type EventKind int

const (
	EventLoading EventKind = iota
	EventPlaying
	EventPosition
	EventPaused
	EventResumed
	EventEndOfTrack
	EventStopped
	EventPreloadNext
	EventAudioOutputUnderrun
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventLoading:
		return "loading"
	case EventPlaying:
		return "playing"
	case EventPosition:
		return "position"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventEndOfTrack:
		return "end_of_track"
	case EventStopped:
		return "stopped"
	case EventPreloadNext:
		return "preload_next"
	case EventAudioOutputUnderrun:
		return "audio_output_underrun"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by the worker to whatever is observing playback.
type Event struct {
	Kind     EventKind
	ItemId   ids.ItemId
	Position time.Duration
	Duration time.Duration
	Err      error
}

// mediaSession is what the player needs from the access-point session: the
// same surface item.go's loading pipeline consumes.
type mediaSession = mediaSource

// loadedItem is a queue item with its opened decode graph attached. Once
// active is called, a background goroutine continuously pulls PCM through
// decoder -> NormGain -> Resampler -> ChannelMapper and into the sink.
type loadedItem struct {
	queueItem queue.Item
	path      ids.MediaPath
	file      *audiofile.AudioFile
	decoder   decode.Decoder
	resampler *dsp.Resampler
	mapper    dsp.ChannelMapper
	normGain  dsp.NormGain
	startedAt time.Time
	position  time.Duration

	feedCancel context.CancelFunc
	feedDone   chan struct{}
}

// activate starts the feeder goroutine that drives this item's decode
// chain into sink, running until ctx is cancelled or the decoder is
// exhausted.
func (it *loadedItem) activate(ctx context.Context, sink *output.Sink, log *zap.SugaredLogger) {
	fctx, cancel := context.WithCancel(ctx)
	it.feedCancel = cancel
	it.feedDone = make(chan struct{})
	go it.feed(fctx, sink, log)
}

func (it *loadedItem) feed(ctx context.Context, sink *output.Sink, log *zap.SugaredLogger) {
	defer close(it.feedDone)
	buf := make([]byte, feedChunkSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := it.decoder.Read(buf)
		if n > 0 {
			it.normGain.Apply(buf[:n])
			resampled, rerr := it.resampler.Process(buf[:n])
			if rerr != nil {
				log.Warnw("resample error", "error", rerr)
				return
			}
			out := it.mapper.Map(resampled)
			if _, werr := sink.Writer().Write(out); werr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Warnw("decode error", "error", err)
			}
			return
		}
	}
}

// stop cancels the feeder and waits for it to exit.
func (it *loadedItem) stop() {
	if it.feedCancel != nil {
		it.feedCancel()
	}
	if it.feedDone != nil {
		<-it.feedDone
	}
}

// Config configures a Player's loading pipeline.
type Config struct {
	PreferredBitrate int // one of 96, 160, 320
	PregainDb        float32
	NormLevel        dsp.NormalizationLevel
	SinkSampleRate   int
	SinkChannels     int
	ResampleQuality  int
	LocalTracks      func(ids.ItemId) (localfiles.TrackInfo, bool)

	// Hooks, if set, receives every emitted Event converted to a hooks.Event.
	// Dispatch is asynchronous and never blocks the worker loop.
	Hooks *hooks.Manager
}

func (c *Config) applyDefaults() {
	if c.PreferredBitrate == 0 {
		c.PreferredBitrate = 160
	}
	if c.SinkSampleRate == 0 {
		c.SinkSampleRate = 44100
	}
	if c.SinkChannels == 0 {
		c.SinkChannels = 2
	}
}

// Player is the single-worker playback actor described by the loading
// pipeline and command/event contract it implements.
type Player struct {
	cfg Config
	log *zap.SugaredLogger

	session mediaSession
	cdn     *cdn.Client
	cache   *cache.Store
	sink    *output.Sink

	commands chan Command
	events   chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	q *queue.Queue

	mu      sync.Mutex
	state   PlaybackState
	current *loadedItem
	preload *loadedItem

	lastUnderruns int64
}

// New builds a Player wired to session, cdn, cache, and sink, and starts
// its worker goroutine.
func New(session mediaSession, cdnClient *cdn.Client, store *cache.Store, sink *output.Sink, cfg Config) *Player {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		cfg:      cfg,
		log:      logger.Logger().With("component", "player"),
		session:  session,
		cdn:      cdnClient,
		cache:    store,
		sink:     sink,
		commands: make(chan Command, 16),
		events:   make(chan Event, 64),
		ctx:      ctx,
		cancel:   cancel,
		q:        queue.New(),
		state:    Stopped,
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Send enqueues a command for the worker. Non-blocking up to the command
// channel's buffer; callers past that point block like any actor mailbox.
func (p *Player) Send(cmd Command) {
	select {
	case p.commands <- cmd:
	case <-p.ctx.Done():
	}
}

// Events returns the channel events are published on.
func (p *Player) Events() <-chan Event { return p.events }

// State returns the player's current playback state.
func (p *Player) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close stops the worker and releases the currently loaded items.
func (p *Player) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Player) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.closeItem(p.current)
			p.closeItem(p.preload)
			return
		case cmd := <-p.commands:
			p.handle(cmd)
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Player) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.log.Warnw("event channel full, dropping event", "kind", ev.Kind)
	}
	if p.cfg.Hooks != nil {
		p.cfg.Hooks.Trigger(p.ctx, toHookEvent(ev))
	}
}

// toHookEvent converts the worker's internal Event into the decoupled shape
// the hooks package dispatches, so hooks never needs to import player.
func toHookEvent(ev Event) hooks.Event {
	h := *hooks.New(hookEventType(ev.Kind), time.Now())
	if !ev.ItemId.IsZero() {
		h = *h.WithItem(ev.ItemId.String())
	}
	if ev.Position != 0 {
		h = *h.WithPosition(ev.Position)
	}
	if ev.Duration != 0 {
		h = *h.WithDuration(ev.Duration)
	}
	if ev.Err != nil {
		h = *h.WithError(ev.Err)
	}
	return h
}

func hookEventType(kind EventKind) hooks.EventType {
	switch kind {
	case EventLoading:
		return hooks.EventLoading
	case EventPlaying:
		return hooks.EventPlaying
	case EventPosition:
		return hooks.EventPosition
	case EventPaused:
		return hooks.EventPaused
	case EventResumed:
		return hooks.EventResumed
	case EventEndOfTrack:
		return hooks.EventEndOfTrack
	case EventStopped:
		return hooks.EventStopped
	case EventPreloadNext:
		return hooks.EventPreloadNext
	case EventAudioOutputUnderrun:
		return hooks.EventUnderrun
	default:
		return hooks.EventPlayerError
	}
}

func (p *Player) setState(s PlaybackState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Player) handle(cmd Command) {
	switch cmd.Kind {
	case CmdLoadQueue:
		p.handleLoadQueue(cmd.Items, cmd.Position)
	case CmdPlay:
		p.handlePlay()
	case CmdPause:
		p.handlePause()
	case CmdResume:
		p.handleResume()
	case CmdPrevTrack:
		p.handlePrevTrack()
	case CmdNextTrack:
		p.handleNextTrack()
	case CmdSeek:
		p.handleSeek(cmd.Seek)
	case CmdStop:
		p.handleStop()
	case CmdSetVolume:
		p.handleSetVolume(cmd.Volume)
	case CmdConfigure:
		p.q.SetBehavior(cmd.Behavior)
	}
}

func (p *Player) handleLoadQueue(items []queue.Item, position int) {
	p.q.Clear()
	p.q.Fill(items, position)
	p.loadCurrentAndPlay()
}

func (p *Player) loadCurrentAndPlay() {
	item, ok := p.q.Current()
	if !ok {
		p.setState(Stopped)
		return
	}

	p.setState(Loading)
	p.emit(Event{Kind: EventLoading, ItemId: item.ItemId})

	p.closeItem(p.current)
	p.current = nil

	loaded, err := p.load(item)
	if err != nil {
		p.log.Errorw("failed to load queue item", "item", item.ItemId.String(), "error", err)
		p.emit(Event{Kind: EventError, ItemId: item.ItemId, Err: err})
		p.setState(Stopped)
		return
	}

	p.current = loaded
	loaded.startedAt = time.Now()
	loaded.activate(p.ctx, p.sink, p.log)
	p.sink.Play()
	p.setState(Playing)
	p.emit(Event{Kind: EventPlaying, ItemId: item.ItemId, Duration: loaded.path.Duration})
	p.emit(Event{Kind: EventPosition, Position: 0})
}

func (p *Player) handlePlay() {
	if p.current == nil {
		p.loadCurrentAndPlay()
		return
	}
	p.sink.Play()
	p.setState(Playing)
}

func (p *Player) handlePause() {
	if p.State() != Playing {
		return
	}
	p.sink.Pause()
	p.setState(Paused)
	p.emit(Event{Kind: EventPaused})
}

func (p *Player) handleResume() {
	if p.State() != Paused {
		return
	}
	p.sink.Play()
	p.setState(Playing)
	p.emit(Event{Kind: EventResumed})
}

func (p *Player) handleSeek(at time.Duration) {
	if p.current == nil {
		return
	}
	p.current.position = at
	p.emit(Event{Kind: EventPosition, Position: at})
}

func (p *Player) handlePrevTrack() {
	if p.current != nil && p.current.position > previousTrackRestartThreshold {
		p.handleSeek(0)
		return
	}
	p.q.SkipToPrevious()
	p.loadCurrentAndPlay()
}

func (p *Player) handleNextTrack() {
	p.q.SkipToNext()
	p.loadCurrentAndPlay()
}

func (p *Player) handleStop() {
	p.sink.Clear()
	p.sink.Pause()
	p.closeItem(p.current)
	p.current = nil
	p.setState(Stopped)
	p.emit(Event{Kind: EventStopped})
}

func (p *Player) handleSetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.sink.SetVolume(v)
}

// tick runs on the worker's periodic timer: it reports position, fires
// preload once the current item is near its end, and hands off to a
// preloaded item on end-of-track.
func (p *Player) tick() {
	if underruns := p.sink.Underruns(); underruns > p.lastUnderruns {
		p.lastUnderruns = underruns
		p.emit(Event{Kind: EventAudioOutputUnderrun})
	}

	if p.current == nil || p.State() != Playing {
		return
	}

	p.current.position = time.Since(p.current.startedAt)
	p.emit(Event{Kind: EventPosition, Position: p.current.position})

	remaining := p.current.path.Duration - p.current.position
	if p.current.path.Duration > 0 && remaining <= 0 {
		p.handleEndOfTrack()
		return
	}

	if p.current.path.Duration > 0 && remaining <= preloadThreshold {
		p.maybeStartPreload()
	}
}

func (p *Player) handleEndOfTrack() {
	finished := p.current.queueItem.ItemId
	p.closeItem(p.current)
	p.current = nil
	p.emit(Event{Kind: EventEndOfTrack, ItemId: finished})

	p.q.SkipToNext()
	next, ok := p.q.Current()
	if !ok {
		p.handleStop()
		return
	}

	if p.preload != nil && p.preload.queueItem.ItemId == next.ItemId {
		p.current = p.preload
		p.preload = nil
		p.current.startedAt = time.Now()
		p.current.activate(p.ctx, p.sink, p.log)
		p.sink.Play()
		p.setState(Playing)
		p.emit(Event{Kind: EventPlaying, ItemId: next.ItemId, Duration: p.current.path.Duration})
		return
	}

	p.loadCurrentAndPlay()
}

func (p *Player) maybeStartPreload() {
	following, ok := p.q.Following()
	if !ok {
		return
	}
	if p.preload != nil && p.preload.queueItem.ItemId == following.ItemId {
		return
	}

	p.closeItem(p.preload)
	p.preload = nil

	loaded, err := p.load(following)
	if err != nil {
		p.log.Warnw("preload failed", "item", following.ItemId.String(), "error", err)
		return
	}
	p.preload = loaded
	p.emit(Event{Kind: EventPreloadNext, ItemId: following.ItemId})
}

func (p *Player) closeItem(it *loadedItem) {
	if it == nil {
		return
	}
	it.stop()
	if it.file != nil {
		it.file.Close()
	}
	if it.resampler != nil {
		_ = it.resampler.Close()
	}
}

// load runs the loading pipeline for one queue item: resolve its
// MediaPath, acquire the audio key if needed, open the file and decoder,
// parse normalization data, and assemble the DSP chain that feeds the sink.
func (p *Player) load(item queue.Item) (*loadedItem, error) {
	path, err := p.resolveMediaPath(item.ItemId)
	if err != nil {
		return nil, err
	}

	var key ids.AudioKey
	if path.Kind != ids.MediaPathLocalFile {
		key, err = loadAudioKey(p.ctx, path, p.session, p.cache)
		if err != nil {
			return nil, err
		}
	}

	file, err := audiofile.Open(p.ctx, path, p.cdn, p.cache)
	if err != nil {
		return nil, err
	}

	src, err := file.Reader(key)
	if err != nil {
		file.Close()
		return nil, err
	}

	// Normalization data sits at a fixed offset from the start of the
	// decrypted plaintext, independent of the container format, so it must
	// be read (and the cursor rewound) before the decoder gets its hands on
	// src and starts consuming it sequentially.
	normData, err := dsp.ParseNormalizationData(src)
	if err != nil {
		file.Close()
		return nil, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, rerrors.NewIOError("player.load", err)
	}

	dec, err := decode.New(src, path.Format)
	if err != nil {
		file.Close()
		return nil, err
	}

	factor := normData.FactorForLevel(p.cfg.NormLevel, p.cfg.PregainDb)

	resampler, err := dsp.NewResampler(dsp.ResamplingSpec{
		InputRate:  dec.SampleRate(),
		OutputRate: p.cfg.SinkSampleRate,
		Channels:   dec.ChannelCount(),
	}, p.cfg.ResampleQuality)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &loadedItem{
		queueItem: item,
		path:      path,
		file:      file,
		decoder:   dec,
		resampler: resampler,
		mapper:    dsp.ChannelMapper{SourceChannels: dec.ChannelCount(), TargetChannels: p.cfg.SinkChannels},
		normGain:  dsp.NormGain{Factor: factor},
	}, nil
}

func (p *Player) resolveMediaPath(item ids.ItemId) (ids.MediaPath, error) {
	switch item.Kind() {
	case ids.ItemKindTrack:
		return loadMediaPathForTrack(p.ctx, item, p.session, p.cache, p.cfg.PreferredBitrate)
	case ids.ItemKindEpisode:
		return loadMediaPathFromEpisode(p.ctx, item, p.session, p.cache, p.cfg.PreferredBitrate)
	case ids.ItemKindLocalFile:
		if p.cfg.LocalTracks == nil {
			return ids.MediaPath{}, rerrors.NewMediaFileNotFoundError("player.resolve_media_path")
		}
		info, ok := p.cfg.LocalTracks(item)
		if !ok {
			return ids.MediaPath{}, rerrors.NewMediaFileNotFoundError("player.resolve_media_path")
		}
		return loadMediaPathFromLocal(item, info, 0), nil
	default:
		return ids.MediaPath{}, rerrors.NewMediaFileNotFoundError("player.resolve_media_path")
	}
}
