package domain

import "fmt"

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// IsMedia reports whether the kind is rendered by clients.
// Anything else a server may announce is ignored.
func (k MediaKind) IsMedia() bool {
	return k == KindAudio || k == KindVideo
}

func ParseMediaKind(raw string) (MediaKind, error) {
	k := MediaKind(raw)
	if !k.IsMedia() {
		return "", fmt.Errorf("unknown media kind %q", raw)
	}
	return k, nil
}

type ProducerID string

// ProducerAnnouncement tells which participant owns a server-side producer.
type ProducerAnnouncement struct {
	ProducerID ProducerID `json:"producerId"`
	UserID     UserID     `json:"userId"`
}
