package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Station-Manager/wmbus/driver"
	"github.com/Station-Manager/wmbus/serial"
	"github.com/go-playground/validator/v10"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("baud", func(fl validator.FieldLevel) bool {
			return serial.ValidBaudRate(int(fl.Field().Int()))
		})
		_ = v.RegisterValidation("linkmodes", func(fl validator.FieldLevel) bool {
			_, err := driver.ParseLinkModes(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("source", func(fl validator.FieldLevel) bool {
			return validSource(fl.Field().String())
		})
		validate = v
	})
	return validate
}

func validSource(s string) bool {
	switch {
	case s == SourceStdin:
		return true
	case strings.HasPrefix(s, SourceFilePrefix):
		return len(s) > len(SourceFilePrefix)
	case strings.HasPrefix(s, SourceCmdPrefix):
		return strings.TrimSpace(s[len(SourceCmdPrefix):]) != ""
	default:
		return serial.ValidatePortPath(s) == nil
	}
}

// Validate checks cfg and reports every problem found.
func Validate(cfg *Config) error {
	err := validatorInstance().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
