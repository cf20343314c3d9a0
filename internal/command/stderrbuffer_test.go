package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStderrBuffer(t *testing.T) {
	tests := []struct {
		name           string
		input          []string
		expectedOutput string
	}{
		{
			name:           "empty input",
			input:          []string{""},
			expectedOutput: "",
		},
		{
			name:           "single short line with delimiter",
			input:          []string{"12345\n"},
			expectedOutput: "12345\n",
		},
		{
			name:           "single short line without delimiter",
			input:          []string{"12345"},
			expectedOutput: "12345",
		},
		{
			name:           "long line is truncated",
			input:          []string{"12345678901234567890\n"},
			expectedOutput: "1234567890\n",
		},
		{
			name:           "line split across writes shares the line limit",
			input:          []string{"12345678", "901234567890", "\nabc"},
			expectedOutput: "1234567890\nabc",
		},
		{
			name:           "multiple lines below the limits",
			input:          []string{"123\n1234\n12345"},
			expectedOutput: "123\n1234\n12345",
		},
		{
			name:           "buffer limit cuts the tail",
			input:          []string{"1234567890\n1234567890\n1234567890\n1234567890"},
			expectedOutput: "1234567890\n1234567890\n123456",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := newStderrBuffer(28, 10)
			for _, input := range tc.input {
				n, err := b.Write([]byte(input))
				require.NoError(t, err)
				require.Equal(t, len(input), n)
			}
			require.Equal(t, tc.expectedOutput, b.String())
		})
	}
}
