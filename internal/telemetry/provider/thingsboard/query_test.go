// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package thingsboard

import (
	"errors"
	"strings"
	"testing"

	"github.com/wneessen/homewatch/internal/telemetry"
)

func TestInlineQuery(t *testing.T) {
	query := inlineQuery("Nirali's iPhone")
	if !strings.Contains(query, "WHERE name = 'Nirali''s iPhone'") {
		t.Errorf("expected device name to be quoted and escaped, got: %s", query)
	}
	if strings.Contains(query, "$1") {
		t.Error("expected placeholder to be replaced")
	}
}

func TestParseRow(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    telemetry.Observation
		wantErr error
	}{
		{
			"valid row", "1712345678901|34.0290|-118.2790\n",
			telemetry.Observation{Timestamp: 1712345678901, Latitude: 34.029, Longitude: -118.279}, nil,
		},
		{"empty output", "  \n", telemetry.Observation{}, telemetry.ErrNoObservation},
		{"too few fields", "1712345678901|34.0290", telemetry.Observation{}, telemetry.ErrInvalidObservation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseRow(tc.out)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error to be %s, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
	t.Run("malformed numbers fail", func(t *testing.T) {
		for _, row := range []string{"abc|1|2", "1|abc|2", "1|2|abc"} {
			if _, err := parseRow(row); err == nil {
				t.Errorf("expected parsing %q to fail", row)
			}
		}
	})
}
