package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
)

// FileSource plays Ogg/Opus and IVF/VP8 files in place of a microphone and a camera.
type FileSource struct {
	AudioPath string
	VideoPath string
	Loop      bool
}

func (s *FileSource) path(kind domain.MediaKind) string {
	if kind == domain.KindVideo {
		return s.VideoPath
	}
	return s.AudioPath
}

func (s *FileSource) Acquire(_ context.Context, kind domain.MediaKind) (core.LocalTrack, error) {
	if !kind.IsMedia() {
		return nil, fmt.Errorf("%w: unsupported kind %q", core.ErrMediaAcquisition, kind)
	}
	path := s.path(kind)
	if path == "" {
		return nil, fmt.Errorf("%w: no %s file configured", core.ErrMediaAcquisition, kind)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMediaAcquisition, err)
	}

	ft := &fileTrack{
		id:   uuid.NewString(),
		kind: kind,
		file: f,
		loop: s.Loop,
		logger: log.With().
			Str("module", "rtc.source").
			Str("kind", string(kind)).
			Str("file", path).
			Logger(),
	}
	if err := ft.open(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %w", core.ErrMediaAcquisition, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ft.cancel = cancel
	ft.stopped = make(chan struct{})
	go ft.pump(ctx)
	return ft, nil
}

type fileTrack struct {
	id     string
	kind   domain.MediaKind
	file   *os.File
	loop   bool
	logger zerolog.Logger

	track    *webrtc.TrackLocalStaticSample
	ogg      *oggreader.OggReader
	ivf      *ivfreader.IVFReader
	interval time.Duration

	cancel  context.CancelFunc
	stopped chan struct{}
}

func (t *fileTrack) ID() string                    { return t.id }
func (t *fileTrack) Kind() domain.MediaKind        { return t.kind }
func (t *fileTrack) TrackLocal() webrtc.TrackLocal { return t.track }

func (t *fileTrack) Stop() {
	t.cancel()
	<-t.stopped
}

// open (re)creates the container reader at the start of the file.
func (t *fileTrack) open() error {
	if _, err := t.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	switch t.kind {
	case domain.KindAudio:
		ogg, _, err := oggreader.NewWith(t.file)
		if err != nil {
			return fmt.Errorf("ogg: %w", err)
		}
		t.ogg = ogg
		if t.track == nil {
			track, err := webrtc.NewTrackLocalStaticSample(
				webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
				t.id, "conference")
			if err != nil {
				return err
			}
			t.track = track
		}
	case domain.KindVideo:
		ivf, header, err := ivfreader.NewWith(t.file)
		if err != nil {
			return fmt.Errorf("ivf: %w", err)
		}
		var mime string
		switch header.FourCC {
		case "VP80":
			mime = webrtc.MimeTypeVP8
		case "VP90":
			mime = webrtc.MimeTypeVP9
		default:
			return fmt.Errorf("ivf: unsupported fourcc %q", header.FourCC)
		}
		t.ivf = ivf
		t.interval = time.Millisecond * time.Duration((float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator))*1000)
		if t.interval <= 0 {
			t.interval = 33 * time.Millisecond
		}
		if t.track == nil {
			track, err := webrtc.NewTrackLocalStaticSample(
				webrtc.RTPCodecCapability{MimeType: mime, ClockRate: 90000}, t.id, "conference")
			if err != nil {
				return err
			}
			t.track = track
		}
	}
	return nil
}

func (t *fileTrack) pump(ctx context.Context) {
	defer close(t.stopped)
	defer t.file.Close()

	var lastGranule uint64
	for {
		var (
			sample media.Sample
			err    error
		)
		if t.kind == domain.KindAudio {
			var data []byte
			var header *oggreader.OggPageHeader
			data, header, err = t.ogg.ParseNextPage()
			if err == nil {
				// Samples in the page are the granule delta.
				count := float64(header.GranulePosition - lastGranule)
				lastGranule = header.GranulePosition
				sample = media.Sample{Data: data, Duration: time.Duration((count/48000)*1000) * time.Millisecond}
			}
		} else {
			var frame []byte
			frame, _, err = t.ivf.ParseNextFrame()
			sample = media.Sample{Data: frame, Duration: t.interval}
		}

		if errors.Is(err, io.EOF) && t.loop {
			lastGranule = 0
			if err = t.open(); err == nil {
				continue
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Error().Err(err).Msg("read media file")
			}
			return
		}

		if err := t.track.WriteSample(sample); err != nil {
			t.logger.Error().Err(err).Msg("write sample")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sample.Duration):
		}
	}
}
