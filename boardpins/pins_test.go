package boardpins

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rovercore/roverr"
)

func TestByAliasResolvesCanonicalAndAlias(t *testing.T) {
	p, ok := ByAlias("GPIO17")
	assert.True(t, ok)
	assert.Equal(t, 17, p.BCM)

	p2, ok := ByAlias("BCM17")
	assert.True(t, ok)
	assert.Equal(t, p.Physical, p2.Physical)
}

func TestByAliasUnknown(t *testing.T) {
	_, ok := ByAlias("GPIO999")
	assert.False(t, ok)
}

func TestValidateRejectsUnknownPin(t *testing.T) {
	err := Validate(map[string]string{"steering.pin": "GPIO999"})
	var cfgErr *roverr.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestValidateAcceptsKnownPinsAndSkipsEmpty(t *testing.T) {
	err := Validate(map[string]string{
		"led.pin":    "GPIO22",
		"unused.pin": "",
	})
	assert.NoError(t, err)
}
