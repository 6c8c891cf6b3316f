package rconfig

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("echoreactord", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7007", cfg.Listen)
	require.Equal(t, 1024, cfg.FIFOCapacity)
}

func TestLoadFlagOverridesDefault(t *testing.T) {
	fs := pflag.NewFlagSet("echoreactord", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)
	require.NoError(t, fs.Parse([]string{"--listen=0.0.0.0:9000", "--fifo-capacity=2048"}))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.Listen)
	require.Equal(t, 2048, cfg.FIFOCapacity)
}

func TestValidateRejectsNonPositiveCapacity(t *testing.T) {
	cfg := defaults()
	cfg.FIFOCapacity = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyListen(t *testing.T) {
	cfg := defaults()
	cfg.Listen = ""
	require.Error(t, cfg.Validate())
}
