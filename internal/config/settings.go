// Package config holds the tuning record threaded through the turn loop and
// the YAML file that wires backends together.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/recall/internal/provider"
)

var ErrInvalidSetting = errors.New("invalid setting")

// Settings are the operator-tunable values. The controller reads them once per
// turn; the operator surface changes them between turns.
type Settings struct {
	Model            string  `yaml:"model"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"top_p"`
	FrequencyPenalty float64 `yaml:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty"`
	TopK             int     `yaml:"top_k"`
	PageTextCap      int     `yaml:"page_text_cap"`
}

func DefaultSettings() Settings {
	return Settings{
		Model:            "gpt-4",
		MaxTokens:        512,
		Temperature:      0.0,
		TopP:             1.0,
		FrequencyPenalty: 0.0,
		PresencePenalty:  0.0,
		TopK:             20,
		PageTextCap:      1000,
	}
}

// Validate checks every value against its bounds.
func (s Settings) Validate() error {
	switch {
	case strings.TrimSpace(s.Model) == "":
		return fmt.Errorf("%w: model must not be empty", ErrInvalidSetting)
	case s.MaxTokens < 1 || s.MaxTokens > 128000:
		return fmt.Errorf("%w: max tokens %d out of range [1, 128000]", ErrInvalidSetting, s.MaxTokens)
	case !inRange(s.Temperature, 0, 2):
		return fmt.Errorf("%w: temperature %.2f out of range [0, 2]", ErrInvalidSetting, s.Temperature)
	case !inRange(s.TopP, 0, 1):
		return fmt.Errorf("%w: top_p %.2f out of range [0, 1]", ErrInvalidSetting, s.TopP)
	case !inRange(s.FrequencyPenalty, -2, 2):
		return fmt.Errorf("%w: frequency penalty %.2f out of range [-2, 2]", ErrInvalidSetting, s.FrequencyPenalty)
	case !inRange(s.PresencePenalty, -2, 2):
		return fmt.Errorf("%w: presence penalty %.2f out of range [-2, 2]", ErrInvalidSetting, s.PresencePenalty)
	case s.TopK < 0 || s.TopK > 1000:
		return fmt.Errorf("%w: top_k %d out of range [0, 1000]", ErrInvalidSetting, s.TopK)
	case s.PageTextCap < 1:
		return fmt.Errorf("%w: page text cap must be positive", ErrInvalidSetting)
	}
	return nil
}

// inRange is false for NaN, which no provider can encode.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// Params converts the completion-related settings for a provider call.
func (s Settings) Params() provider.Params {
	return provider.Params{
		Model:            s.Model,
		MaxTokens:        s.MaxTokens,
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		FrequencyPenalty: s.FrequencyPenalty,
		PresencePenalty:  s.PresencePenalty,
	}
}

// Setting names accepted by Set.
const (
	NameModel            = "model"
	NameMaxTokens        = "max_tokens"
	NameTemperature      = "temperature"
	NameTopP             = "top_p"
	NameFrequencyPenalty = "frequency_penalty"
	NamePresencePenalty  = "presence_penalty"
	NameTopK             = "top_k"
	NamePageTextCap      = "page_text_cap"
)

// Set parses value into the named setting. On any error the receiver is left
// unchanged.
func (s *Settings) Set(name, value string) error {
	next := *s
	value = strings.TrimSpace(value)

	var err error
	switch name {
	case NameModel:
		next.Model = value
	case NameMaxTokens:
		next.MaxTokens, err = strconv.Atoi(value)
	case NameTemperature:
		next.Temperature, err = strconv.ParseFloat(value, 64)
	case NameTopP:
		next.TopP, err = strconv.ParseFloat(value, 64)
	case NameFrequencyPenalty:
		next.FrequencyPenalty, err = strconv.ParseFloat(value, 64)
	case NamePresencePenalty:
		next.PresencePenalty, err = strconv.ParseFloat(value, 64)
	case NameTopK:
		next.TopK, err = strconv.Atoi(value)
	case NamePageTextCap:
		next.PageTextCap, err = strconv.Atoi(value)
	default:
		return fmt.Errorf("%w: unknown setting %q", ErrInvalidSetting, name)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %q is not a number", ErrInvalidSetting, name, value)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}
