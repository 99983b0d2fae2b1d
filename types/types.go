package types

// ServiceState is the retained health record each service publishes on its
// <service>/state topic whenever its condition changes. Watchers key off
// Level; Status narrows the cause down.
type ServiceState struct {
	Level  string `json:"level"`  // one of: idle, starting, running, degraded, fault
	Status string `json:"status"` // short cause tag, e.g. "awaiting_config"
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// Reply answers a control verb. OK reports acceptance; on refusal Code holds
// the errcode string instead.
type Reply struct {
	OK   bool   `json:"ok"`
	Code string `json:"code,omitempty"`
}
