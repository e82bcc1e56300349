package hal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressUnmarshalsPlainInt(t *testing.T) {
	var a Address
	require.NoError(t, json.Unmarshal([]byte("64"), &a))
	assert.Equal(t, Address(64), a)
}

func TestAddressUnmarshalsHexString(t *testing.T) {
	var a Address
	require.NoError(t, json.Unmarshal([]byte(`"0x40"`), &a))
	assert.Equal(t, Address(64), a)
}

func TestAddressUnmarshalRejectsGarbageString(t *testing.T) {
	var a Address
	assert.Error(t, json.Unmarshal([]byte(`"not-an-address"`), &a))
}

func TestAddressRoundTripsThroughMarshal(t *testing.T) {
	var hex Address
	require.NoError(t, json.Unmarshal([]byte(`"0x40"`), &hex))

	out, err := json.Marshal(hex)
	require.NoError(t, err)
	assert.Equal(t, "64", string(out))

	var back Address
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, hex, back)
}

func TestPWMDriverConfigDecodesEitherAddressForm(t *testing.T) {
	var intForm, hexForm PWMDriverConfig
	require.NoError(t, json.Unmarshal([]byte(`{"chip":"PCA9685","address":64,"bus":""}`), &intForm))
	require.NoError(t, json.Unmarshal([]byte(`{"chip":"PCA9685","address":"0x40","bus":""}`), &hexForm))

	assert.Equal(t, intForm.Address, hexForm.Address)
	assert.NoError(t, intForm.Validate())
	assert.NoError(t, hexForm.Validate())
}

func TestPWMDriverConfigValidateRejectsOutOfRangeAddress(t *testing.T) {
	cfg := PWMDriverConfig{Chip: "PCA9685", Address: 128}
	assert.Error(t, cfg.Validate())
}
