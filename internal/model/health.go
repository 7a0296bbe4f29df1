package model

const (
	PipelineInitialized    = "initialized"
	PipelineNotInitialized = "not_initialized"
	StoreConnected         = "connected"
	StoreDisconnected      = "disconnected"
)

type Health struct {
	APIStatus      string                 `json:"api_status"`
	PipelineStatus string                 `json:"pipeline_status"`
	StoreStatus    string                 `json:"store_status"`
	Settings       map[string]interface{} `json:"settings,omitempty"`
}
