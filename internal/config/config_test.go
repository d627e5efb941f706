package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadNilReturnsCompiledDefaults(t *testing.T) {
	d, err := Load(nil)
	if err != nil {
		t.Fatalf("Load(nil) error = %v", err)
	}
	want := compiledDefaults()
	if d != want {
		t.Fatalf("Load(nil) = %+v, want %+v", d, want)
	}
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	t.Setenv("STM8BOOT_BAUD", "57600")
	v := viper.New()
	d, err := Load(v)
	if err != nil {
		t.Fatalf("Load(v) error = %v", err)
	}
	if d.BaudRate != 57600 {
		t.Errorf("Load(v).BaudRate = %d, want 57600", d.BaudRate)
	}
	if d.TimeoutMS != defaultTimeoutMS {
		t.Errorf("Load(v).TimeoutMS = %d, want default %d", d.TimeoutMS, defaultTimeoutMS)
	}
}
