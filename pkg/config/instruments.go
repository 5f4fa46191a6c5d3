package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Instrument overrides the rounding applied to one contract.
type Instrument struct {
	PricePrecision  int32 `yaml:"price_precision" validate:"gte=0,lte=12"`
	VolumePrecision int32 `yaml:"volume_precision" validate:"gte=0,lte=12"`
}

type instrumentsFile struct {
	Instruments map[string]Instrument `yaml:"instruments"`
}

// LoadInstruments reads a YAML file of the form
//
//	instruments:
//	  APT_USDT: {price_precision: 4, volume_precision: 0}
func LoadInstruments(path string) (map[string]Instrument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments file: %w", err)
	}
	var f instrumentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse instruments file: %w", err)
	}
	return f.Instruments, nil
}
