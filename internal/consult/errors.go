package consult

import (
	"errors"

	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/domain"
)

// UserMessage maps an error to the actionable text shown to the user.
// This is the only layer that produces user-facing wording; a camera
// problem, a room problem, and a stalled connection each read
// differently.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrCameraDenied):
		return "Camera or microphone access was denied. Allow access in your device settings and try again."
	case errors.Is(err, domain.ErrCameraNotFound):
		return "No camera or microphone was found. Connect a device and try again."
	case errors.Is(err, domain.ErrRoomFull):
		return "This consultation room already has two participants."
	case errors.Is(err, domain.ErrRoomNotFound):
		return "That room code was not found. Check the code with your doctor and try again."
	case errors.Is(err, domain.ErrChannelNeverOpen):
		return "Connected, but the consultation channel never opened. Leave and rejoin the room."
	case errors.Is(err, domain.ErrPeerGone):
		return "The other participant left the consultation."
	case errors.Is(err, domain.ErrScanFailed):
		return "The face scan could not be completed. Ask the patient to try again."
	case errors.Is(err, domain.ErrTimeout):
		return "Could not reach the other party in time. Check your connection and try again."
	case errors.Is(err, domain.ErrNetwork):
		return "Network error while contacting the consultation service. Check your connection and try again."
	default:
		return "Something went wrong with the consultation session."
	}
}
