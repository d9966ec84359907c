// Package config loads and validates the sentinel configuration.
//
// Configuration is HCL (or HCL's JSON syntax, selected by file extension):
//
//	schema_version = "1.0"
//	default_action = "DENY"
//
//	api {
//	  listen       = env("SENTINEL_LISTEN", ":8000")
//	  cors_origins = ["*"]
//	  logs_limit   = 50
//	}
//
//	threat_detection {
//	  window                = "60s"
//	  port_scan_threshold   = 5
//	  brute_force_threshold = 5
//	}
//
//	rule {
//	  action   = "DENY"
//	  src_ip   = "192.168.1.100"
//	  dst_port = 23
//	  protocol = "TCP"
//	}
//
// Expressions may call env(name, fallback) and the string helpers upper,
// lower and trimspace. Rule blocks seed the rule store in file order.
package config
