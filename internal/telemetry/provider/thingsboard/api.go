// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package thingsboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/homewatch/internal/http"
	"github.com/wneessen/homewatch/internal/telemetry"
)

const (
	nameAPI = "thingsboard-api"

	loginEndpoint      = "/api/auth/login"
	deviceEndpoint     = "/api/tenant/devices"
	timeseriesEndpoint = "/api/plugins/telemetry/DEVICE/%s/values/timeseries"

	APITimeout = time.Second * 10
)

var ErrDeviceNotFound = errors.New("device not found")

// API reads the latest device location through the ThingsBoard REST API.
type API struct {
	http     *http.Client
	baseURL  string
	username string
	password string

	mu      sync.Mutex
	token   string
	devices map[string]string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type deviceResponse struct {
	ID struct {
		EntityType string `json:"entityType"`
		ID         string `json:"id"`
	} `json:"id"`
	Name string `json:"name"`
}

type sample struct {
	Timestamp int64     `json:"ts"`
	Value     flexFloat `json:"value"`
}

// flexFloat accepts both JSON numbers and numeric strings. ThingsBoard returns telemetry
// values as strings unless useStrictDataTypes is set.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid telemetry value %s: %w", data, err)
	}
	*f = flexFloat(val)
	return nil
}

func NewAPI(client *http.Client, baseURL, username, password string) *API {
	return &API{
		http:     client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		devices:  make(map[string]string),
	}
}

func (a *API) Name() string {
	return nameAPI
}

func (a *API) FetchLatest(ctx context.Context, device string) (telemetry.Observation, error) {
	obs, err := a.fetchLatest(ctx, device)

	// The JWT expired, log in again and retry once
	var statusErr *http.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == stdhttp.StatusUnauthorized {
		a.mu.Lock()
		a.token = ""
		a.mu.Unlock()
		obs, err = a.fetchLatest(ctx, device)
	}
	return obs, err
}

func (a *API) fetchLatest(ctx context.Context, device string) (telemetry.Observation, error) {
	var obs telemetry.Observation

	token, err := a.login(ctx)
	if err != nil {
		return obs, err
	}
	headers := map[string]string{"X-Authorization": "Bearer " + token}

	deviceID, err := a.deviceID(ctx, device, headers)
	if err != nil {
		return obs, err
	}

	query := url.Values{}
	query.Set("keys", "lat,lng,lon")
	series := make(map[string][]sample)
	endpoint := a.baseURL + fmt.Sprintf(timeseriesEndpoint, url.PathEscape(deviceID))
	if _, err = a.http.GetWithTimeout(ctx, endpoint, &series, query, headers, APITimeout); err != nil {
		return obs, fmt.Errorf("failed to fetch latest telemetry from ThingsBoard API: %w", err)
	}

	lat, ok := latest(series["lat"])
	if !ok {
		return obs, telemetry.ErrNoObservation
	}
	lng, ok := latest(series["lng"])
	if !ok {
		if lng, ok = latest(series["lon"]); !ok {
			return obs, telemetry.ErrNoObservation
		}
	}

	obs.Timestamp = max(lat.Timestamp, lng.Timestamp)
	obs.Latitude = float64(lat.Value)
	obs.Longitude = float64(lng.Value)
	return obs, nil
}

func (a *API) login(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" {
		return a.token, nil
	}

	body, err := json.Marshal(loginRequest{Username: a.username, Password: a.password})
	if err != nil {
		return "", fmt.Errorf("failed to encode login request: %w", err)
	}
	var result loginResponse
	headers := map[string]string{"Content-Type": "application/json"}
	if _, err = a.http.PostWithTimeout(ctx, a.baseURL+loginEndpoint, &result, bytes.NewReader(body), headers,
		APITimeout); err != nil {
		return "", fmt.Errorf("failed to log in to ThingsBoard API: %w", err)
	}
	if result.Token == "" {
		return "", errors.New("ThingsBoard API login returned an empty token")
	}
	a.token = result.Token
	return a.token, nil
}

func (a *API) deviceID(ctx context.Context, device string, headers map[string]string) (string, error) {
	a.mu.Lock()
	id, ok := a.devices[device]
	a.mu.Unlock()
	if ok {
		return id, nil
	}

	query := url.Values{}
	query.Set("deviceName", device)
	var result deviceResponse
	_, err := a.http.GetWithTimeout(ctx, a.baseURL+deviceEndpoint, &result, query, headers, APITimeout)
	var statusErr *http.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == stdhttp.StatusNotFound {
		return "", fmt.Errorf("%w: %q", ErrDeviceNotFound, device)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up device from ThingsBoard API: %w", err)
	}
	if result.ID.ID == "" {
		return "", fmt.Errorf("%w: %q", ErrDeviceNotFound, device)
	}

	a.mu.Lock()
	a.devices[device] = result.ID.ID
	a.mu.Unlock()
	return result.ID.ID, nil
}

func latest(samples []sample) (sample, bool) {
	if len(samples) == 0 {
		return sample{}, false
	}
	newest := samples[0]
	for _, s := range samples[1:] {
		if s.Timestamp > newest.Timestamp {
			newest = s
		}
	}
	return newest, true
}
