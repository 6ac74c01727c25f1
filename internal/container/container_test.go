package container

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-account-lifecycle/config"
)

func TestGetJWTFallsBackToConfig(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	assert.Nil(t, GetJWT())

	SetConfig(&config.Config{AppName: "rrdemo", Session: config.Session{Secret: "s", TTL: time.Hour}})
	m := GetJWT()
	require.NotNil(t, m)
	assert.Same(t, m, GetJWT())
}

func TestReset(t *testing.T) {
	SetConfig(&config.Config{})
	Reset()
	assert.Nil(t, GetConfig())
	assert.Nil(t, GetLogger())
	assert.Nil(t, GetRabbitPub())
}
