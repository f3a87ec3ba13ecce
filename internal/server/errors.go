package server

import (
	"errors"

	"spacedrift/internal/net"
)

var (
	ErrRoomExists     = errors.New("room already exists")
	ErrRoomNotFound   = errors.New("room not found")
	ErrAlreadyInRoom  = errors.New("already in room")
	ErrRoomFull       = errors.New("room is full")
	ErrNotHost        = errors.New("not the room host")
	ErrNotMember      = errors.New("not a room member")
	ErrAlreadyQueued  = errors.New("already queued")
	ErrNoPendingMatch = errors.New("no pending match")
	ErrRateLimited    = errors.New("rate limited")
)

var errorFrames = []struct {
	err     error
	code    string
	message string
}{
	{ErrRoomExists, net.CodeAlreadyExists, "Room already exists"},
	{ErrRoomNotFound, net.CodeNotFound, "Room not found"},
	{ErrAlreadyInRoom, net.CodeAlreadyInRoom, "Already in room"},
	{ErrRoomFull, net.CodeRoomFull, "Room is full"},
	{ErrNotHost, net.CodeNotHost, "Only host can do that"},
	{ErrNotMember, net.CodeNotMember, "Not a member of this room"},
	{ErrRateLimited, net.CodeRateLimit, "Requests too frequent"},
}

// protocolError maps err onto the ERROR frame sent back to the client.
func protocolError(err error) *net.ProtocolError {
	var perr *net.ProtocolError
	if errors.As(err, &perr) {
		return perr
	}
	for _, f := range errorFrames {
		if errors.Is(err, f.err) {
			return net.NewProtocolError(f.code, f.message, err)
		}
	}
	return net.NewProtocolError(net.CodeBadRequest, "Request failed", err)
}
