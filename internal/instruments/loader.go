package instruments

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	Instruments []Instrument `yaml:"instruments"`
}

// Load reads the instrument metadata YAML file, applies defaults and
// validates the table. Unknown fields are rejected so typos fail fast.
func Load(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Universe from raw YAML bytes.
func Parse(data []byte) (*Universe, error) {
	var file fileFormat
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse instruments file: %w", err)
	}

	byStem := make(map[string]Instrument, len(file.Instruments))
	for _, ins := range file.Instruments {
		if ins.Stem == "" {
			return nil, fmt.Errorf("instrument with empty stem")
		}
		if _, dup := byStem[ins.Stem]; dup {
			return nil, fmt.Errorf("duplicate instrument %s", ins.Stem)
		}

		applyDefaults(&ins)

		parsed, perr := parseDay(ins.StartDate, DefaultStartDate)
		if perr != nil {
			return nil, fmt.Errorf("instrument %s: invalid start_date: %w", ins.Stem, perr)
		}
		ins.startDay = parsed

		parsed, perr = parseDay(ins.MarginRefDate, DefaultMarginRefDate)
		if perr != nil {
			return nil, fmt.Errorf("instrument %s: invalid margin_ref_date: %w", ins.Stem, perr)
		}
		ins.marginRefDay = parsed

		if err := validate(ins); err != nil {
			return nil, fmt.Errorf("instrument %s: %w", ins.Stem, err)
		}

		byStem[ins.Stem] = ins
	}

	return &Universe{byStem: byStem}, nil
}

func applyDefaults(ins *Instrument) {
	if ins.Type == "" {
		ins.Type = TypeFuture
	}
	if ins.Currency == "" {
		ins.Currency = "USD"
	}
	if ins.RollOffsetDays == 0 {
		ins.RollOffsetDays = DefaultRollOffsetDays
	}
	if ins.MarketImpact == 0 {
		ins.MarketImpact = DefaultMarketImpact
	}
}

func parseDay(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return time.Parse("2006-01-02", s)
}

func validate(ins Instrument) error {
	switch ins.Type {
	case TypeFuture, TypeStock, TypeCoin:
	default:
		return fmt.Errorf("unknown type %q", ins.Type)
	}

	if ins.Type == TypeFuture {
		if ins.PointValue <= 0 {
			return fmt.Errorf("point_value must be positive")
		}
		if ins.OvernightInitial <= 0 || ins.OvernightMaintenance <= 0 {
			return fmt.Errorf("overnight margin figures must be positive")
		}
		if ins.RollOffsetDays > 0 {
			return fmt.Errorf("roll_offset_days must be negative")
		}
	}

	if ins.MarketImpact < 0 {
		return fmt.Errorf("market_impact must not be negative")
	}

	return nil
}
