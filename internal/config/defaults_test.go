package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaults_MatchDefault(t *testing.T) {
	v := viper.New()
	registerDefaults(v)

	fromViper := &Config{}
	require.NoError(t, v.Unmarshal(fromViper))
	ApplyDefaults(fromViper)

	assert.Equal(t, Default(), fromViper)
}
