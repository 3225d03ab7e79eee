package domain

// AttachDebug is an optional verbose event describing coordinator transitions.
type AttachDebug struct {
	Type          string `json:"type"` // attach_debug
	SchemaVersion int    `json:"schemaVersion"`
	Parent        string `json:"parent,omitempty"`
	From          string `json:"from"`
	To            string `json:"to"`
	Attempt       int    `json:"attempt,omitempty"`
	Reason        string `json:"reason,omitempty"` // e.g., not_running, start_failed, child_restarted
}
