package core

import (
	"github.com/google/uuid"

	"github.com/dkeye/Conference/internal/domain"
)

// MediaStream groups tracks into one playable unit.
type MediaStream struct {
	ID     string
	Tracks []Track
}

func NewMediaStream(tracks ...Track) *MediaStream {
	return &MediaStream{ID: uuid.NewString(), Tracks: tracks}
}

// ConsumedStream is a remote producer materialized on the receive transport.
type ConsumedStream struct {
	ProducerID domain.ProducerID
	Kind       domain.MediaKind
	Consumer   Consumer
	Stream     *MediaStream
}

// LocalMedia is one of the participant's own outbound producers.
type LocalMedia struct {
	Kind     domain.MediaKind
	Producer Producer
	Track    LocalTrack
	Stream   *MediaStream
}
