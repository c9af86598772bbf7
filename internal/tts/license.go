package tts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/solenne/livecast/internal/logger"
)

const pathLogin = "/api/license/login"

// MachineCode returns a stable fingerprint for this device, derived from
// the primary network interface's hardware address and the hostname. It
// is sent with every voice-service request so the license server can
// bind a key to one machine.
func MachineCode() string {
	hostname, _ := os.Hostname()
	raw := primaryMAC() + "-" + hostname
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// primaryMAC returns the hardware address of the first interface that
// has one, or "" when none is found. Stable enough across reboots.
func primaryMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if addr := iface.HardwareAddr.String(); addr != "" {
			return addr
		}
	}
	return ""
}

// LoginResult is the license server's verdict.
type LoginResult struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// OK reports whether the license was accepted.
func (r *LoginResult) OK() bool { return r.Code == 0 }

// LicenseClient talks to the license endpoint of the voice service.
type LicenseClient struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// NewLicenseClient creates a license client for the given service root.
func NewLicenseClient(baseURL string, log *logger.Logger) *LicenseClient {
	return &LicenseClient{
		baseURL: trimBase(baseURL),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Login validates the license key against the server, binding it to this
// machine. Transient network failures get one immediate retry.
func (c *LicenseClient) Login(ctx context.Context, licenseKey string) (*LoginResult, error) {
	payload, err := json.Marshal(map[string]string{
		"license_key":  licenseKey,
		"machine_code": MachineCode(),
	})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathLogin, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn("license login attempt %d failed: %v", attempt+1, err)
			continue
		}

		var result LoginResult
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("decoding login response: %w", err)
			continue
		}
		return &result, nil
	}
	return nil, fmt.Errorf("license server unreachable: %w", lastErr)
}

func trimBase(base string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base
}
