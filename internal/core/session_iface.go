package core

import "github.com/dkeye/Conference/internal/domain"

type SessionID string

// MemberSession binds a room member and its signaling endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}
