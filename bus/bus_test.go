package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMockI2CRoundTrip(t *testing.T) {
	dev := NewMockI2C()
	dev.Seed(0x10, 0x42)

	out := make([]byte, 1)
	err := dev.Tx([]byte{0x10}, out)
	assert.NoError(t, err)
	assert.Equal(t, byte(0x42), out[0])
	assert.Len(t, dev.Txs, 1)
}

func TestMockI2CWriteUpdatesRegister(t *testing.T) {
	dev := NewMockI2C()
	err := dev.Tx([]byte{0x05, 0x7f}, nil)
	assert.NoError(t, err)

	out := make([]byte, 1)
	assert.NoError(t, dev.Tx([]byte{0x05}, out))
	assert.Equal(t, byte(0x7f), out[0])
}

func TestMockGPIORecordsLevels(t *testing.T) {
	pin := NewMockGPIO("D0")
	assert.NoError(t, pin.Out(true))
	assert.NoError(t, pin.Out(false))
	assert.Equal(t, []bool{true, false}, pin.Levels)
	assert.False(t, pin.Current)
	assert.Equal(t, "D0", pin.Name())
}
