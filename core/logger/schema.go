package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
)

const (
	// DirectionIn marks records about events received from the platform.
	DirectionIn = "in"
	// DirectionOut marks records about calls made to the platform.
	DirectionOut = "out"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

var allowedStatus = map[string]struct{}{
	"ok":           {},
	"fail":         {},
	"skip":         {},
	"dropped":      {},
	"rate_limited": {},
	"cancelled":    {},
}

var allowedDirection = map[string]struct{}{
	DirectionIn:  {},
	DirectionOut: {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeEnum(value string, allowed map[string]struct{}) (string, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", false
	}
	_, ok := allowed[value]
	return value, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"direction",
	"tag",
	"class",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"username",
	"kind",
	"action",
	"handler",
	"route",
	"state",
	"cb_key",
	"payload",
	"message_id",
	"gate",
	"reason",
	"incident",
	"duration_ms",
	"attempted",
	"delivered",
	"failed",
	"skipped",
	"batches",
	"events",
	"notices",
	"offset",
	"mode",
	"listen",
	"public_url",
	"db",
	"driver",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"stack",
}
