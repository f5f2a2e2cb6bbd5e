package processing

import (
	"context"
	"errors"
	"flipbook/metrics"
	"flipbook/models"
	"flipbook/storage"
	"flipbook/utils"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWindowSize         = 5
	DefaultTranscodeThreshold = 5 << 20 // 5 MiB
	defaultRetryBase          = 200 * time.Millisecond
)

// Recorder persists one file record per placed item
type Recorder interface {
	RecordFile(ctx context.Context, file models.File) (models.File, error)
}

// Item is one binary upload of a batch. Index is its global position and becomes the order index.
// Content comes from Open when set, otherwise from Data. Open is called only when the item's
// window runs, so at most one window of content is held in memory.
type Item struct {
	Index    int
	Name     string
	MimeType string
	FileType string
	Data     []byte
	Open     func() (io.ReadCloser, error)
}

func (item *Item) content() ([]byte, error) {
	if item.Open == nil {
		return item.Data, nil
	}
	r, err := item.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ManifestEntry describes a file that is already hosted elsewhere
type ManifestEntry struct {
	FilePath   string
	FileType   string
	OrderIndex int
}

type Options struct {
	WindowSize         int
	TranscodeThreshold int
	Transcode          TranscodeOptions
	// PlacementTimeout bounds every single placement attempt, 0 disables it
	PlacementTimeout time.Duration
	// PlacementRetries is the number of extra attempts after a failed placement
	PlacementRetries uint64
	RetryBase        time.Duration
}

type Pipeline struct {
	remote          storage.Placer
	local           storage.Placer
	remoteAvailable bool
	recorder        Recorder
	opts            Options
	// Transcoder can be replaced in tests
	Transcoder func(data []byte) TranscodeResult
}

// New creates the pipeline. remoteAvailable is decided once at startup: when set, all
// placements go to remote, otherwise to local. The selected placer must not be nil.
func New(remote, local storage.Placer, remoteAvailable bool, recorder Recorder, opts Options) (*Pipeline, error) {
	if remoteAvailable && remote == nil {
		return nil, fmt.Errorf("%w: remote store selected but not configured", ErrNoPlacer)
	}
	if !remoteAvailable && local == nil {
		return nil, fmt.Errorf("%w: local store selected but not configured", ErrNoPlacer)
	}
	if recorder == nil {
		return nil, errors.New("processing: recorder is required")
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.TranscodeThreshold <= 0 {
		opts.TranscodeThreshold = DefaultTranscodeThreshold
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	p := &Pipeline{
		remote:          remote,
		local:           local,
		remoteAvailable: remoteAvailable,
		recorder:        recorder,
		opts:            opts,
	}
	p.Transcoder = func(data []byte) TranscodeResult {
		return Transcode(data, p.opts.Transcode)
	}
	return p, nil
}

func (p *Pipeline) RemoteAvailable() bool {
	return p.remoteAvailable
}

// RecordManifest records files the client has already placed. Nothing is transcoded or placed.
// Missing types default to sheet.
func (p *Pipeline) RecordManifest(ctx context.Context, albumID uint64, entries []ManifestEntry) ([]models.File, error) {
	result := make([]models.File, 0, len(entries))
	for _, entry := range entries {
		fileType := entry.FileType
		if fileType == "" {
			fileType = models.FileTypeSheet
		}
		file, err := p.recorder.RecordFile(ctx, models.File{
			AlbumID:    albumID,
			FilePath:   entry.FilePath,
			FileType:   fileType,
			OrderIndex: entry.OrderIndex,
		})
		if err != nil {
			metrics.IngestFilesTotal.WithLabelValues("manifest", "error").Inc()
			return nil, err
		}
		metrics.IngestFilesTotal.WithLabelValues("manifest", "ok").Inc()
		result = append(result, file)
	}
	return result, nil
}

// Upload runs the items through transcoding, placement and recording. Items are handled in
// consecutive windows: all items of a window run concurrently and the next window starts only
// after every item of the current one has finished. The first failure aborts the batch, records
// created before it are kept but not returned. An empty batch records nothing.
func (p *Pipeline) Upload(ctx context.Context, albumID uint64, items []Item) ([]models.File, error) {
	if len(items) == 0 {
		return []models.File{}, nil
	}
	logger := log.With().Uint64("album_id", albumID).Int("files", len(items)).Logger()
	logger.Info().Bool("remote", p.remoteAvailable).Msg("upload batch started")
	start := time.Now()

	results := make([]models.File, len(items))
	for window, from := 0, 0; from < len(items); window, from = window+1, from+p.opts.WindowSize {
		to := min(from+p.opts.WindowSize, len(items))
		// A plain group: one failing item does not cancel its siblings
		var g errgroup.Group
		for pos := from; pos < to; pos++ {
			g.Go(func() error {
				file, err := p.ingest(ctx, albumID, items[pos])
				if err != nil {
					return err
				}
				results[pos] = file
				return nil
			})
		}
		err := g.Wait()
		metrics.IngestWindowsTotal.Inc()
		if err != nil {
			logger.Error().Err(err).Int("window", window).Msg("upload batch failed")
			return nil, err
		}
		logger.Debug().Int("window", window).Int("from", from).Int("to", to).Msg("window done")
	}
	logger.Info().Dur("took", time.Since(start)).Msg("upload batch done")
	return results, nil
}

func (p *Pipeline) ingest(ctx context.Context, albumID uint64, item Item) (models.File, error) {
	data, err := item.content()
	if err != nil {
		metrics.IngestFilesTotal.WithLabelValues("upload", "error").Inc()
		return models.File{}, fmt.Errorf("reading file %d: %w", item.Index, err)
	}
	obj := storage.Object{
		AlbumID:  albumID,
		Index:    item.Index,
		Ext:      utils.CleanExt(item.Name),
		MimeType: item.MimeType,
		Data:     data,
	}
	if len(obj.Data) > p.opts.TranscodeThreshold {
		p.transcode(&obj)
	}
	locator, err := p.place(ctx, obj)
	if err != nil {
		metrics.IngestFilesTotal.WithLabelValues("upload", "error").Inc()
		return models.File{}, &PlacementError{Index: item.Index, Err: err}
	}
	fileType := item.FileType
	if fileType == "" {
		fileType = models.FileTypeSheet
	}
	file, err := p.recorder.RecordFile(ctx, models.File{
		AlbumID:    albumID,
		FilePath:   locator,
		FileType:   fileType,
		OrderIndex: item.Index,
	})
	if err != nil {
		metrics.IngestFilesTotal.WithLabelValues("upload", "error").Inc()
		return models.File{}, err
	}
	metrics.IngestFilesTotal.WithLabelValues("upload", "ok").Inc()
	return file, nil
}

// transcode replaces the content of obj when transcoding works and keeps it untouched otherwise
func (p *Pipeline) transcode(obj *storage.Object) {
	result := p.safeTranscode(obj.Data)
	if !result.Transcoded || result.Err != nil || len(result.Data) == 0 {
		metrics.TranscodeTotal.WithLabelValues("fallback").Inc()
		log.Warn().Err(result.Err).Uint64("album_id", obj.AlbumID).Int("index", obj.Index).Msg("transcode failed, keeping original")
		return
	}
	outcome := "recompressed"
	if result.Resized {
		outcome = "resized"
	}
	metrics.TranscodeTotal.WithLabelValues(outcome).Inc()
	log.Debug().Uint64("album_id", obj.AlbumID).Int("index", obj.Index).
		Int("before", len(obj.Data)).Int("after", len(result.Data)).Msg("transcoded")
	obj.Data = result.Data
	obj.MimeType = result.MimeType
	obj.Ext = result.Ext
}

func (p *Pipeline) safeTranscode(data []byte) (result TranscodeResult) {
	defer func() {
		if r := recover(); r != nil {
			result = fallback(data, fmt.Errorf("transcoder panic: %v", r))
		}
	}()
	return p.Transcoder(data)
}

func (p *Pipeline) place(ctx context.Context, obj storage.Object) (string, error) {
	placer, target := p.local, "local"
	if p.remoteAvailable {
		placer, target = p.remote, "remote"
	}
	var locator string
	backoff := retry.WithMaxRetries(p.opts.PlacementRetries, retry.NewExponential(p.opts.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.opts.PlacementTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.opts.PlacementTimeout)
		}
		defer cancel()
		start := time.Now()
		l, err := placer.Place(attemptCtx, obj)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.PlacementDuration.WithLabelValues(target, status).Observe(time.Since(start).Seconds())
		if err != nil {
			log.Warn().Err(err).Str("target", target).Uint64("album_id", obj.AlbumID).Int("index", obj.Index).Msg("placement failed")
			return retry.RetryableError(err)
		}
		locator = l
		return nil
	})
	return locator, err
}
