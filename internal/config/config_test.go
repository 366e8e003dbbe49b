package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEngineConfigOverridesDefaults(t *testing.T) {
	cfg := DefaultEngineConfig()
	text := "samplerate = 44100\nblocksize = 256\n# a comment\nbogus = wat\n"
	warnings, err := ParseEngineConfig(strings.NewReader(text), &cfg)
	require.NoError(t, err)
	assert.Equal(t, 44100.0, cfg.SampleRate)
	assert.Equal(t, 256, cfg.BlockSize)
	require.Len(t, warnings, 1)
	assert.Equal(t, "bogus", warnings[0].Key)
}

func TestParseEngineConfigRejectsOutOfRange(t *testing.T) {
	cfg := DefaultEngineConfig()
	_, err := ParseEngineConfig(strings.NewReader("samplerate = 999999\n"), &cfg)
	assert.Error(t, err)
	assert.Equal(t, DefaultEngineConfig().SampleRate, cfg.SampleRate)
}

func TestLoadBankRoundTrips(t *testing.T) {
	yamlText := `
patches:
  1:
    name: "Jazz"
    upper: [8,8,8,0,0,0,0,0,0]
    lower: [8,0,0,0,0,0,0,0,0]
    pedal: [8,0,0,0,0,0,0,0,0]
    percussion:
      enabled: true
      fast: true
    vibrato:
      depth: 1
    whirl:
      speed: 2
    overdrive:
      clean: true
`
	bank, err := LoadBank(strings.NewReader(yamlText))
	require.NoError(t, err)
	require.Contains(t, bank.Patches, 1)
	assert.Equal(t, "Jazz", bank.Patches[1].Name)
	assert.True(t, bank.Patches[1].Percussion.Enabled)

	var buf bytes.Buffer
	require.NoError(t, bank.Encode(&buf))
	assert.Contains(t, buf.String(), "Jazz")
}

func TestLoadBankRejectsBadDrawbar(t *testing.T) {
	yamlText := `
patches:
  1:
    upper: [9,0,0,0,0,0,0,0,0]
`
	_, err := LoadBank(strings.NewReader(yamlText))
	assert.Error(t, err)
}

func TestLoadBankRejectsBadIndex(t *testing.T) {
	yamlText := `
patches:
  200:
    name: "oops"
`
	_, err := LoadBank(strings.NewReader(yamlText))
	assert.Error(t, err)
}
