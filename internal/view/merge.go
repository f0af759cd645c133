// Package view merges room membership, producer ownership and consumed streams
// into the per-participant tiles a client renders.
package view

import (
	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
)

type TileMode string

const (
	TileVideo TileMode = "video"
	TileAudio TileMode = "audio"
	TileNone  TileMode = "none"
)

type Producer struct {
	Kind   domain.MediaKind
	Stream *core.MediaStream
}

type Participant struct {
	UserID    domain.UserID
	Name      string
	Self      bool
	Producers []Producer
}

func (p Participant) HasKind(kind domain.MediaKind) bool {
	return lo.ContainsBy(p.Producers, func(pr Producer) bool { return pr.Kind == kind })
}

// Mode picks how the participant is drawn: video beats audio, no media shows an avatar only.
func (p Participant) Mode() TileMode {
	switch {
	case p.HasKind(domain.KindVideo):
		return TileVideo
	case p.HasKind(domain.KindAudio):
		return TileAudio
	default:
		return TileNone
	}
}

type Input struct {
	Self          domain.Peer
	Peers         []domain.Peer
	Announcements []domain.ProducerAnnouncement
	Streams       []core.ConsumedStream
	Local         []core.LocalMedia
}

// Merge recomputes the full participant list: self first, then peers in membership order.
// Peer producers are the consumed streams whose producer is announced as theirs,
// in announcement order.
func Merge(in Input) []Participant {
	streams := lo.SliceToMap(in.Streams, func(s core.ConsumedStream) (domain.ProducerID, core.ConsumedStream) {
		return s.ProducerID, s
	})
	owned := make(map[domain.UserID][]Producer)
	for _, ann := range in.Announcements {
		s, ok := streams[ann.ProducerID]
		if !ok {
			continue
		}
		owned[ann.UserID] = append(owned[ann.UserID], Producer{Kind: s.Kind, Stream: s.Stream})
	}

	out := make([]Participant, 0, len(in.Peers)+1)
	out = append(out, Participant{
		UserID: in.Self.ID,
		Name:   in.Self.Name,
		Self:   true,
		Producers: lo.Map(localOrdered(in.Local), func(l core.LocalMedia, _ int) Producer {
			return Producer{Kind: l.Kind, Stream: l.Stream}
		}),
	})

	peers := lo.UniqBy(in.Peers, func(p domain.Peer) domain.UserID { return p.ID })
	for _, p := range peers {
		if p.ID == in.Self.ID && in.Self.ID != "" {
			continue
		}
		out = append(out, Participant{UserID: p.ID, Name: p.Name, Producers: owned[p.ID]})
	}
	for i := range out {
		if out[i].Producers == nil {
			out[i].Producers = []Producer{}
		}
	}
	return out
}

func localOrdered(local []core.LocalMedia) []core.LocalMedia {
	rank := func(k domain.MediaKind) int {
		if k == domain.KindAudio {
			return 0
		}
		return 1
	}
	out := lo.Filter(local, func(l core.LocalMedia, _ int) bool { return l.Kind.IsMedia() })
	if len(out) == 2 && rank(out[0].Kind) > rank(out[1].Kind) {
		out[0], out[1] = out[1], out[0]
	}
	return out
}
