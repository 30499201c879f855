package chain

import (
	"fmt"
	"os"
	"strings"
)

// DefaultRPCURL is the public Base mainnet endpoint.
const DefaultRPCURL = "https://mainnet.base.org"

func RPCURLFromEnv() string {
	return strings.TrimSpace(firstNonEmpty(os.Getenv("RPC_URL"), os.Getenv("RPC_WS_URL"), os.Getenv("BASE_RPC_URL")))
}

// ValidateRPCURL rejects anything that is not http(s)/ws(s) and leftover
// provider placeholders.
func ValidateRPCURL(rpcURL string) error {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return fmt.Errorf("rpc url required (set --rpc-url or RPC_URL)")
	}
	if !strings.HasPrefix(rpcURL, "http") && !strings.HasPrefix(rpcURL, "ws") {
		return fmt.Errorf("rpc url must be http(s)://... or ws(s)://..., got %q", rpcURL)
	}
	if strings.Contains(rpcURL, "YOUR_KEY") {
		return fmt.Errorf("rpc url still contains placeholder YOUR_KEY")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
