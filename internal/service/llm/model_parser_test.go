package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModel(t *testing.T) {
	tests := []struct {
		name         string
		modelStr     string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{
			name:         "claude-haiku with version",
			modelStr:     "claude-haiku-4-5",
			wantProvider: "anthropic",
			wantModel:    "claude-haiku-4-5",
		},
		{
			name:         "claude-sonnet with full version",
			modelStr:     "claude-sonnet-4-5-20250929",
			wantProvider: "anthropic",
			wantModel:    "claude-sonnet-4-5-20250929",
		},
		{
			name:         "uppercase prefix",
			modelStr:     "Claude-Haiku-4-5",
			wantProvider: "anthropic",
			wantModel:    "Claude-Haiku-4-5",
		},
		{
			name:         "explicit provider",
			modelStr:     "anthropic/claude-haiku-4-5",
			wantProvider: "anthropic",
			wantModel:    "claude-haiku-4-5",
		},
		{
			name:         "explicit provider keeps nested path",
			modelStr:     "proxy/anthropic/claude-haiku-4-5",
			wantProvider: "proxy",
			wantModel:    "anthropic/claude-haiku-4-5",
		},
		{
			name:         "lorem-fast model",
			modelStr:     "lorem-fast",
			wantProvider: "lorem",
			wantModel:    "lorem-fast",
		},
		{name: "empty string", modelStr: "", wantErr: true},
		{name: "unknown model prefix", modelStr: "unknown-model-123", wantErr: true},
		{name: "empty provider", modelStr: "/claude-haiku-4-5", wantErr: true},
		{name: "empty model", modelStr: "anthropic/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseModel(tt.modelStr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, got.Provider)
			assert.Equal(t, tt.wantModel, got.Model)
		})
	}
}
