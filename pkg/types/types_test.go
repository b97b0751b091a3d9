package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		input   string
		want    Profile
		wantErr bool
	}{
		{"self-hosted", ProfileSelfHosted, false},
		{"google-cloud-sql", ProfileCloudSQL, false},
		{"", "", true},
		{"selfhosted", "", true},
		{"production", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProfile(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDatabaseHost(t *testing.T) {
	assert.Equal(t, ServiceDatabase, ProfileSelfHosted.DatabaseHost())
	assert.Equal(t, ServiceCloudProxy, ProfileCloudSQL.DatabaseHost())
}
