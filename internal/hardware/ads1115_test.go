package hardware

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
)

// fakeADS emulates the ADS1115 register file.
type fakeADS struct {
	values     [4]int16
	config     uint16
	busyPolls  int
	failReads  bool
	configLogs []uint16
}

func (f *fakeADS) String() string      { return "fake-ads1115" }
func (f *fakeADS) Duplex() conn.Duplex { return conn.Half }

func (f *fakeADS) Tx(w, r []byte) error {
	if len(w) == 0 {
		return errors.New("empty write")
	}
	switch w[0] {
	case adsRegConfig:
		if len(w) == 3 {
			f.config = binary.BigEndian.Uint16(w[1:])
			f.configLogs = append(f.configLogs, f.config)
			return nil
		}
		if f.failReads {
			return errors.New("i2c nack")
		}
		cfg := f.config &^ adsConfigOsSingle
		if f.busyPolls > 0 {
			f.busyPolls--
		} else {
			cfg |= adsConfigOsSingle
		}
		binary.BigEndian.PutUint16(r, cfg)
		return nil
	case adsRegConversion:
		ch := int((f.config>>12)&0x7) - 4
		binary.BigEndian.PutUint16(r, uint16(f.values[ch]))
		return nil
	}
	return errors.New("unknown register")
}

func TestADS1115_ReadSelectsChannel(t *testing.T) {
	dev := &fakeADS{values: [4]int16{100, 200, 300, 400}, busyPolls: 2}
	adc := NewADS1115(dev)

	for ch := 0; ch < 4; ch++ {
		v, err := adc.Read(ch)
		require.NoError(t, err)
		assert.Equal(t, dev.values[ch], v)
	}

	require.Len(t, dev.configLogs, 4)
	assert.Equal(t, uint16(0xC383), dev.configLogs[0], "AIN0 single-shot, gain 1, 128SPS")
	assert.Equal(t, uint16(0xF383), dev.configLogs[3], "AIN3 single-shot, gain 1, 128SPS")
}

func TestADS1115_InvalidChannel(t *testing.T) {
	adc := NewADS1115(&fakeADS{})
	_, err := adc.Read(4)
	assert.Error(t, err)
	_, err = adc.Read(-1)
	assert.Error(t, err)
}

func TestADS1115_BusError(t *testing.T) {
	adc := NewADS1115(&fakeADS{failReads: true})
	_, err := adc.Read(0)
	assert.ErrorContains(t, err, "read config")
}

func TestAdsToRaw(t *testing.T) {
	tests := []struct {
		value int16
		want  int
	}{
		{0, 0},
		{6553, 999},
		{32767, 4999},
		{-20, 0},
		{4588, 700},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, adsToRaw(tt.value), "adsToRaw(%d)", tt.value)
	}
}
