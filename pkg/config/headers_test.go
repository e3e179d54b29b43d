package config_test

import (
	"strings"
	"testing"

	"github.com/hyp3rd/otlpexport/pkg/config"
)

func TestParseHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want config.Headers
	}{
		{
			name: "empty",
			raw:  "",
			want: nil,
		},
		{
			name: "simple pairs",
			raw:  "api-key=abc, tenant = acme",
			want: config.Headers{{Key: "api-key", Value: "abc"}, {Key: "tenant", Value: "acme"}},
		},
		{
			name: "percent decoded",
			raw:  "authorization=Basic%20dXNlcjpwYXNz,x%2Dkey=a%3Db",
			want: config.Headers{{Key: "authorization", Value: "Basic dXNlcjpwYXNz"}, {Key: "x-key", Value: "a=b"}},
		},
		{
			name: "last wins keeps first position",
			raw:  "a=1,b=2,a=3",
			want: config.Headers{{Key: "a", Value: "3"}, {Key: "b", Value: "2"}},
		},
		{
			name: "empty value and trailing comma",
			raw:  "a=,",
			want: config.Headers{{Key: "a", Value: ""}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := config.ParseHeaders(tc.raw)
			if err != nil {
				t.Fatalf("ParseHeaders returned error: %v", err)
			}

			if len(got) != len(tc.want) {
				t.Fatalf("expected %d headers, got %#v", len(tc.want), got)
			}

			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("header %d: expected %+v, got %+v", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestParseHeadersRejectsMalformedPair(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"novalue", "=value", "a=%zz"} {
		_, err := config.ParseHeaders(raw)
		if err == nil {
			t.Fatalf("expected error for %q", raw)
		}

		if !config.IsConfigurationError(err) {
			t.Fatalf("expected ConfigurationError for %q, got %T", raw, err)
		}
	}

	_, err := config.ParseHeaders("good=1,bad")
	if err == nil || !strings.Contains(err.Error(), `"bad"`) {
		t.Fatalf("expected error naming the malformed pair, got %v", err)
	}
}
