package config

import "time"

const (
	EnvLogLevel  = "LOG_LEVEL"
	EnvRelayName = "RELAY_NAME"
	EnvTiltNames = "TILT_NAMES"

	EnvRadioDriver   = "RADIO_DRIVER"
	EnvHCIDevice     = "HCI_DEVICE"
	EnvLockOnAddress = "LOCK_ON_ADDRESS"

	EnvWiFiSSID      = "WIFI_SSID"
	EnvWiFiPassword  = "WIFI_PASSWORD"
	EnvWiFiInterface = "WIFI_INTERFACE"

	EnvUploadSink     = "UPLOAD_SINK"
	EnvUploadURL      = "UPLOAD_URL"
	EnvUploadStreamID = "UPLOAD_STREAM_ID"
	EnvDbDsn          = "DB_DSN"

	EnvConnectTimeout      = "CONNECT_TIMEOUT"
	EnvSendTimeout         = "SEND_TIMEOUT"
	EnvKeepaliveInterval   = "KEEPALIVE_INTERVAL"
	EnvBackoffInitial      = "BACKOFF_INITIAL"
	EnvBackoffCeiling      = "BACKOFF_CEILING"
	EnvConnectFailureLimit = "CONNECT_FAILURE_LIMIT"

	EnvUploadMaxAttempts = "UPLOAD_MAX_ATTEMPTS"
	EnvUploadMinInterval = "UPLOAD_MIN_INTERVAL"
	EnvUploadMaxFailures = "UPLOAD_MAX_FAILURES"

	EnvSupervisorMaxRestarts   = "SUPERVISOR_MAX_RESTARTS"
	EnvSupervisorRestartWindow = "SUPERVISOR_RESTART_WINDOW"

	EnvHTTPPort = "HTTP_PORT"
	EnvGRPCPort = "GRPC_PORT"

	DefaultLogLevel  = "info"
	DefaultRelayName = "tilt-relay"

	DefaultRadioDriver   = RadioHCI
	DefaultHCIDevice     = 0
	DefaultLockOnAddress = true

	DefaultWiFiInterface = "wlan0"

	DefaultUploadSink = SinkHTTP
	DefaultUploadURL  = "http://log.brewfather.net/stream"

	DefaultConnectTimeout      = 30 * time.Second
	DefaultSendTimeout         = 10 * time.Second
	DefaultKeepaliveInterval   = time.Minute
	DefaultBackoffInitial      = 5 * time.Second
	DefaultBackoffCeiling      = 5 * time.Minute
	DefaultConnectFailureLimit = 10

	DefaultUploadMaxAttempts = 5
	DefaultUploadMinInterval = 15 * time.Minute
	DefaultUploadMaxFailures = 3

	DefaultSupervisorMaxRestarts   = 5
	DefaultSupervisorRestartWindow = 10 * time.Minute

	DefaultHTTPPort = 8080
	DefaultGRPCPort = 50051
)

// Radio drivers.
const (
	RadioHCI  = "hci"
	RadioStub = "stub"
)

// Upload sinks.
const (
	SinkHTTP     = "http"
	SinkPostgres = "postgres"
	SinkMemory   = "memory"
)
