package netcfg

import "os"

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

var APIBase = getenv("MARS_API_BASE", "http://127.0.0.1:3001")  // REST
var ServerURL = getenv("MARS_WS_URL", "ws://127.0.0.1:3001/ws") // WebSocket
