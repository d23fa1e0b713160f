// Package client provides a client library for connecting to a remote
// homehub server. Grounded on client/client.go's REST-call style,
// retargeted from the teacher's /api/stats /api/stations endpoints to
// the energy, device-history and actuator endpoints this module
// exposes.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a running homehubd over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(serverURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(serverURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// BusStatus reports whether the server's bus connection is up.
func (c *Client) BusStatus() (map[string]any, error) {
	return c.getJSON("/bus/status")
}

// EnergyAnalysis calls GET /energy/analysis?range=…&device_ids=….
// An empty rangeParam requests the monthly projection.
func (c *Client) EnergyAnalysis(rangeParam string, deviceIDs []uint) (map[string]any, error) {
	q := url.Values{}
	if rangeParam != "" {
		q.Set("range", rangeParam)
	}
	if len(deviceIDs) > 0 {
		ids := make([]string, len(deviceIDs))
		for i, id := range deviceIDs {
			ids[i] = strconv.FormatUint(uint64(id), 10)
		}
		q.Set("device_ids", strings.Join(ids, ","))
	}
	return c.getJSON("/energy/analysis?" + q.Encode())
}

// DeviceHistory calls GET /devices/{id}/history?range=….
func (c *Client) DeviceHistory(deviceID uint, rangeParam string) ([]map[string]any, error) {
	path := fmt.Sprintf("/devices/%d/history?range=%s", deviceID, url.QueryEscape(rangeParam))
	resp, err := c.HTTPClient.Get(c.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned error: %d - %s", resp.StatusCode, string(body))
	}

	var out []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// Toggle, SetTemp and SetFanSpeed call the three actuator endpoints.
func (c *Client) Toggle(deviceID uint) (map[string]any, error) {
	return c.postAction(deviceID, "toggle", nil)
}

func (c *Client) SetTemp(deviceID uint, value float64) (map[string]any, error) {
	return c.postAction(deviceID, "set_temp", &value)
}

func (c *Client) SetFanSpeed(deviceID uint, value float64) (map[string]any, error) {
	return c.postAction(deviceID, "set_fan_speed", &value)
}

func (c *Client) postAction(deviceID uint, action string, value *float64) (map[string]any, error) {
	body := map[string]any{}
	if value != nil {
		body["value"] = *value
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/devices/%d/%s", deviceID, action)
	resp, err := c.HTTPClient.Post(c.BaseURL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned error: %d - %s", resp.StatusCode, string(respBody))
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// StreamToken calls GET /realtime/stream-token.
func (c *Client) StreamToken() (string, error) {
	out, err := c.getJSON("/realtime/stream-token")
	if err != nil {
		return "", err
	}
	token, _ := out["stream_token"].(string)
	return token, nil
}

func (c *Client) getJSON(path string) (map[string]any, error) {
	resp, err := c.HTTPClient.Get(c.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned error: %d - %s", resp.StatusCode, string(body))
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
