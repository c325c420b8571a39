package domain

import "errors"

// Error kinds surfaced to the controller. Each maps to a distinct
// user-facing message; compare with errors.Is.
var (
	ErrCameraDenied      = errors.New("camera or microphone permission denied")
	ErrCameraNotFound    = errors.New("no camera or microphone device found")
	ErrRoomFull          = errors.New("room already has two participants")
	ErrRoomNotFound      = errors.New("room does not exist")
	ErrNetwork           = errors.New("network error")
	ErrTimeout           = errors.New("operation timed out")
	ErrChannelNotOpen    = errors.New("data channel is not open")
	ErrChannelNeverOpen  = errors.New("data channel never opened")
	ErrPeerGone          = errors.New("remote peer left the session")
	ErrSessionClosed     = errors.New("peer session is closed")
	ErrNotJoined         = errors.New("not joined to a room")
	ErrAlreadyJoined     = errors.New("already joined a room")
	ErrScanFailed        = errors.New("face scan failed")
)
