// Package config handles configuration loading for tars-gateway.
//
// Configuration is loaded from YAML files with environment variable
// expansion (${VAR_NAME}) and Go duration syntax for timing values.
//
// Example:
//
//	server:
//	  http_addr: ":3000"        # falls back to $PORT, then :3000
//
//	session:
//	  credentials_path: "/var/lib/tars/credentials.db"
//	  dial_retry_wait: "3s"
//
//	network:
//	  mode: "sim"
//
//	assets:
//	  pdf_path: "assets/menu.pdf"
//
//	send:
//	  timeout: "25s"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
