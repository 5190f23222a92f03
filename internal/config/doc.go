// Package config provides layered configuration for the client.
//
// Values are resolved in precedence order: built-in defaults, then an
// optional YAML file, then GROUNDPLAN_* environment variables.
//
// Configuration Sections:
//   - API: planning service base URL and REST transport tuning
//   - Stream: heartbeat, handshake, and reconnection schedule
//   - Chat: conversation behavior such as reasoning trace visibility
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg, err := config.Load(os.Getenv("GROUNDPLAN_CONFIG"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("talking to %s\n", cfg.API.BaseURL)
//
// Environment Variables:
//   - GROUNDPLAN_API_BASE_URL, GROUNDPLAN_API_TIMEOUT, GROUNDPLAN_API_RPS
//   - GROUNDPLAN_STREAM_HEARTBEAT, GROUNDPLAN_STREAM_MAX_RECONNECTS
//   - GROUNDPLAN_CHAT_INCLUDE_REASONING
//   - GROUNDPLAN_LOG_LEVEL, GROUNDPLAN_LOG_FORMAT
package config
