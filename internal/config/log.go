package config

import (
	"sort"
	"strconv"
)

// Logger is the subset used by LogConfig.
type Logger interface {
	Info(msg string, args ...any)
}

// LogConfig logs every setting once at startup. Secrets are reported only
// as set or unset.
func LogConfig(logger Logger, cfg *Config) {
	if logger == nil || cfg == nil {
		return
	}

	colors := make([]string, 0, len(cfg.TiltNames))
	for color, name := range cfg.TiltNames {
		colors = append(colors, color.String()+"="+name)
	}
	sort.Strings(colors)

	logger.Info("configuration loaded",
		EnvLogLevel, cfg.LogLevel,
		EnvRelayName, cfg.RelayName,
		EnvTiltNames, colors,
		EnvRadioDriver, cfg.Radio.Driver,
		EnvHCIDevice, cfg.Radio.HCIDevice,
		EnvLockOnAddress, cfg.Radio.LockOnAddress,
		EnvWiFiSSID, emptyFallback(cfg.WiFi.SSID),
		EnvWiFiPassword, redacted(cfg.WiFi.Password),
		EnvWiFiInterface, cfg.WiFi.Interface,
		EnvUploadSink, cfg.Upload.Sink,
		EnvUploadURL, cfg.Upload.URL,
		EnvUploadStreamID, redacted(cfg.Upload.StreamID),
		EnvDbDsn, redactedLength(cfg.Upload.DbDsn),
		EnvConnectTimeout, cfg.Connection.ConnectTimeout.String(),
		EnvSendTimeout, cfg.Connection.SendTimeout.String(),
		EnvKeepaliveInterval, cfg.Connection.KeepaliveInterval.String(),
		EnvBackoffInitial, cfg.Connection.BackoffInitial.String(),
		EnvBackoffCeiling, cfg.Connection.BackoffCeiling.String(),
		EnvConnectFailureLimit, cfg.Connection.FailureLimit,
		EnvUploadMaxAttempts, cfg.Upload.MaxAttempts,
		EnvUploadMinInterval, cfg.Upload.MinInterval.String(),
		EnvUploadMaxFailures, cfg.Upload.MaxFailures,
		EnvSupervisorMaxRestarts, cfg.Supervisor.MaxRestarts,
		EnvSupervisorRestartWindow, cfg.Supervisor.RestartWindow.String(),
		EnvHTTPPort, portOrDisabled(cfg.HTTPPort),
		EnvGRPCPort, portOrDisabled(cfg.GRPCPort),
	)
}

func redacted(value string) string {
	if value == "" {
		return "(not set)"
	}
	return "(redacted)"
}

func redactedLength(value string) string {
	if value == "" {
		return "(not set)"
	}
	return "set (length " + strconv.Itoa(len(value)) + ")"
}

func emptyFallback(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}

func portOrDisabled(port int) string {
	if port == 0 {
		return "disabled"
	}
	return strconv.Itoa(port)
}
