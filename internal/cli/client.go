package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yaap/hardware-google-pixel/internal/daemon"
)

// client talks to a running daemon over its HTTP API.
type client struct {
	base string
	http *http.Client
}

// newClient targets --addr, or the API address from the config.
func newClient() (*client, error) {
	addr := serverAddr
	if addr == "" {
		cfg, err := daemon.LoadConfigPath(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		addr = cfg.API.Addr()
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &client{
		base: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *client) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

// do sends body as JSON and decodes the reply into out. Error replies are
// turned into errors carrying the daemon's message.
func (c *client) do(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error.Message == "" {
			return fmt.Errorf("%s %s: %s", method, path, resp.Status)
		}
		return fmt.Errorf("%s (%s)", apiErr.Error.Message, apiErr.Error.Type)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
