package datachannel

import (
	"encoding/json"
	"time"
)

// Message type discriminators carried in the "type" field of every
// application message. Receivers treat unknown values as no-ops.
const (
	TypeFaceScanRequest = "face-scan-request"
	TypeFaceScanStatus  = "face-scan-status"
	TypeFaceScanResults = "face-scan-results"
	TypePatientInfo     = "patient-info"
	TypeDoctorInfo      = "doctor-info"
)

// Status strings carried by face-scan-status notifications.
const (
	StatusScanInProgress      = "scan-in-progress"
	StatusScanFailed          = "scan-failed"
	StatusScanCompleted       = "Face scan completed successfully!"
	StatusPrescriptionCreated = "prescription-created"
	StatusDiagnosisCreated    = "diagnosis-created"
	StatusLabRequestCreated   = "lab-request-created"
)

// envelope is the minimal shape peeked at before dispatch.
type envelope struct {
	Type string `json:"type"`
}

// FaceScanRequest asks the patient side to begin a scan.
type FaceScanRequest struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
}

// FaceScanStatus is a progress or clinical notification. Payload is an
// optional structured body whose shape depends on Status.
type FaceScanStatus struct {
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// FaceScanResults is the terminal scan outcome, forwarded byte-for-byte
// from the scan provider.
type FaceScanResults struct {
	Type    string          `json:"type"`
	Results json.RawMessage `json:"results"`
	Status  string          `json:"status"`
}

// PatientInfo is the patient's identity handshake, sent when the channel
// opens and resent on every fresh open.
type PatientInfo struct {
	Type        string `json:"type"`
	PatientName string `json:"patientName"`
	PatientID   int    `json:"patientId"`
	Email       string `json:"email"`
	Timestamp   int64  `json:"timestamp"`
}

// DoctorInfo is the clinician's reciprocal identity handshake.
type DoctorInfo struct {
	Type           string `json:"type"`
	DoctorName     string `json:"doctorName"`
	Specialization string `json:"specialization"`
	Bio            string `json:"bio"`
}

// Now returns the current time as epoch milliseconds, the timestamp unit
// used on the wire. Timestamps are for debugging; ordering comes from
// the channel itself.
func Now() int64 {
	return time.Now().UnixMilli()
}

// NewFaceScanRequest builds a scan request for a room.
func NewFaceScanRequest(roomID string) FaceScanRequest {
	return FaceScanRequest{Type: TypeFaceScanRequest, RoomID: roomID, Timestamp: Now()}
}

// NewFaceScanStatus builds a status notification.
func NewFaceScanStatus(status string, payload json.RawMessage) FaceScanStatus {
	return FaceScanStatus{Type: TypeFaceScanStatus, Status: status, Timestamp: Now(), Payload: payload}
}

// NewFaceScanResults builds a terminal results message.
func NewFaceScanResults(results json.RawMessage, status string) FaceScanResults {
	return FaceScanResults{Type: TypeFaceScanResults, Results: results, Status: status}
}
