package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yelena0000/fish-store/core"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"1", "1", false},
		{"2.5", "2.5", false},
		{"0,5", "0.5", false},
		{" 1.5 kg", "1.5", false},
		{"3KG", "3", false},
		{"0.1", "0.1", false},
		{"50", "50", false},
		{"", "", true},
		{"kg", "", true},
		{"abc", "", true},
		{"1.5.2", "", true},
		{"0", "", true},
		{"-2", "", true},
		{"0.05", "", true},
		{"50.5", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			q, err := ParseQuantity(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsValidation(err))
				assert.NotEmpty(t, core.UserMessage(err, ""))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, q.String())
		})
	}
}
