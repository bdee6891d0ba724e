// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package thingsboard

import (
	"encoding/json"
	"errors"
	"log/slog"
	stdhttp "net/http"
	"strings"
	"testing"

	"github.com/wneessen/homewatch/internal/http"
	"github.com/wneessen/homewatch/internal/logger"
	"github.com/wneessen/homewatch/internal/telemetry"
	"github.com/wneessen/homewatch/internal/testhelper"
)

const (
	testBaseURL  = "http://tb.example.com:8080"
	testDeviceID = "784f394c-42b6-435a-983c-b7beff2784f9"
	testToken    = "eyJhbGciOiJIUzUxMiJ9.test"

	deviceResponseJSON     = `{"id":{"entityType":"DEVICE","id":"` + testDeviceID + `"},"name":"Nirali's iPhone"}`
	timeseriesResponseJSON = `{"lat":[{"ts":1712345678000,"value":"34.0290"}],"lng":[{"ts":1712345678901,"value":-118.279}]}`
)

type apiMock struct {
	t          *testing.T
	logins     int
	series     string
	expireOnce bool
	deviceCode int
}

func (m *apiMock) roundTrip(req *stdhttp.Request) (*stdhttp.Response, error) {
	switch {
	case req.URL.Path == loginEndpoint:
		m.logins++
		var login loginRequest
		if err := json.NewDecoder(req.Body).Decode(&login); err != nil {
			m.t.Errorf("failed to decode login request: %s", err)
		}
		if login.Username != "tenant@thingsboard.org" || login.Password != "tenant" {
			return testhelper.JSONResponse(401, `{"status":401}`), nil
		}
		return testhelper.JSONResponse(200, `{"token":"`+testToken+`","refreshToken":"r"}`), nil
	case req.URL.Path == deviceEndpoint:
		if req.Header.Get("X-Authorization") != "Bearer "+testToken {
			m.t.Errorf("unexpected authorization header: %q", req.Header.Get("X-Authorization"))
		}
		if m.deviceCode != 0 {
			return testhelper.JSONResponse(m.deviceCode, `{}`), nil
		}
		return testhelper.JSONResponse(200, deviceResponseJSON), nil
	case strings.Contains(req.URL.Path, "/values/timeseries"):
		if m.expireOnce {
			m.expireOnce = false
			return testhelper.JSONResponse(401, `{"status":401,"message":"Token has expired"}`), nil
		}
		if !strings.Contains(req.URL.Path, testDeviceID) {
			m.t.Errorf("expected device id in path, got %s", req.URL.Path)
		}
		if req.URL.Query().Get("keys") != "lat,lng,lon" {
			m.t.Errorf("unexpected keys: %q", req.URL.Query().Get("keys"))
		}
		return testhelper.JSONResponse(200, m.series), nil
	}
	m.t.Errorf("unexpected request: %s %s", req.Method, req.URL)
	return testhelper.JSONResponse(404, `{}`), nil
}

func testAPI(t *testing.T, mock *apiMock, user, pass string) *API {
	t.Helper()
	mock.t = t
	client := http.New(logger.New(slog.LevelDebug))
	client.Transport = testhelper.MockRoundTripper{Fn: mock.roundTrip}
	return NewAPI(client, testBaseURL+"/", user, pass)
}

func TestAPI_FetchLatest(t *testing.T) {
	t.Run("latest location is returned", func(t *testing.T) {
		mock := &apiMock{series: timeseriesResponseJSON}
		api := testAPI(t, mock, "tenant@thingsboard.org", "tenant")
		obs, err := api.FetchLatest(t.Context(), "Nirali's iPhone")
		if err != nil {
			t.Fatal(err)
		}
		want := telemetry.Observation{Timestamp: 1712345678901, Latitude: 34.029, Longitude: -118.279}
		if obs != want {
			t.Errorf("expected %+v, got %+v", want, obs)
		}
	})
	t.Run("token and device id are reused", func(t *testing.T) {
		mock := &apiMock{series: timeseriesResponseJSON}
		api := testAPI(t, mock, "tenant@thingsboard.org", "tenant")
		for i := 0; i < 3; i++ {
			if _, err := api.FetchLatest(t.Context(), "Nirali's iPhone"); err != nil {
				t.Fatal(err)
			}
		}
		if mock.logins != 1 {
			t.Errorf("expected a single login, got %d", mock.logins)
		}
	})
	t.Run("expired token triggers a new login", func(t *testing.T) {
		mock := &apiMock{series: timeseriesResponseJSON, expireOnce: true}
		api := testAPI(t, mock, "tenant@thingsboard.org", "tenant")
		if _, err := api.FetchLatest(t.Context(), "Nirali's iPhone"); err != nil {
			t.Fatal(err)
		}
		if mock.logins != 2 {
			t.Errorf("expected two logins, got %d", mock.logins)
		}
	})
	t.Run("lon key is used when lng is missing", func(t *testing.T) {
		mock := &apiMock{series: `{"lat":[{"ts":5,"value":1.5}],"lon":[{"ts":3,"value":"2.5"}]}`}
		obs, err := testAPI(t, mock, "tenant@thingsboard.org", "tenant").FetchLatest(t.Context(), "dev")
		if err != nil {
			t.Fatal(err)
		}
		if obs.Timestamp != 5 || obs.Latitude != 1.5 || obs.Longitude != 2.5 {
			t.Errorf("unexpected observation: %+v", obs)
		}
	})
	t.Run("missing series is no observation", func(t *testing.T) {
		for _, series := range []string{`{}`, `{"lat":[{"ts":5,"value":1.5}]}`, `{"lng":[{"ts":5,"value":1.5}]}`} {
			mock := &apiMock{series: series}
			_, err := testAPI(t, mock, "tenant@thingsboard.org", "tenant").FetchLatest(t.Context(), "dev")
			if !errors.Is(err, telemetry.ErrNoObservation) {
				t.Errorf("%s: expected error to be %s, got %v", series, telemetry.ErrNoObservation, err)
			}
		}
	})
	t.Run("invalid credentials fail", func(t *testing.T) {
		mock := &apiMock{series: timeseriesResponseJSON}
		_, err := testAPI(t, mock, "tenant@thingsboard.org", "wrong").FetchLatest(t.Context(), "dev")
		var statusErr *http.StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != 401 {
			t.Errorf("expected 401 status error, got %v", err)
		}
	})
	t.Run("unknown device fails", func(t *testing.T) {
		mock := &apiMock{series: timeseriesResponseJSON, deviceCode: 404}
		_, err := testAPI(t, mock, "tenant@thingsboard.org", "tenant").FetchLatest(t.Context(), "dev")
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("expected error to be %s, got %v", ErrDeviceNotFound, err)
		}
	})
	t.Run("malformed value fails", func(t *testing.T) {
		mock := &apiMock{series: `{"lat":[{"ts":5,"value":"north"}],"lng":[{"ts":5,"value":1}]}`}
		if _, err := testAPI(t, mock, "tenant@thingsboard.org", "tenant").FetchLatest(t.Context(), "dev"); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestLatest(t *testing.T) {
	if _, ok := latest(nil); ok {
		t.Error("expected no sample for empty series")
	}
	got, ok := latest([]sample{{Timestamp: 1, Value: 1}, {Timestamp: 3, Value: 3}, {Timestamp: 2, Value: 2}})
	if !ok || got.Timestamp != 3 {
		t.Errorf("expected newest sample, got %+v", got)
	}
}
