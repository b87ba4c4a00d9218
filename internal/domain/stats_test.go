package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		input   string
		want    Interval
		wantErr bool
	}{
		{"current", IntervalCurrent, false},
		{"minute", IntervalMinute, false},
		{"hour", IntervalHour, false},
		{"day", IntervalDay, false},
		{"", "", true},
		{"week", "", true},
		{"Minute", "", true},
	}

	for _, tt := range tests {
		got, err := ParseInterval(tt.input)
		if tt.wantErr {
			require.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		require.Equal(t, tt.want, got)
	}
}
