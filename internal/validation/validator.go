// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package validation wraps go-playground/validator v10 behind a
// thread-safe singleton with the custom rules the configuration needs.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Error is a collection of field validation failures.
type Error struct {
	fields []string
}

func (e *Error) Error() string {
	if len(e.fields) == 0 {
		return "validation failed"
	}
	return strings.Join(e.fields, "; ")
}

// Fields returns one message per failed field.
func (e *Error) Fields() []string {
	return e.fields
}

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// httpsurl: an absolute http(s) URL.
		validate.RegisterValidation("httpsurl", func(fl validator.FieldLevel) bool {
			return schemeIn(fl.Field().String(), "http", "https")
		})
		// wsurl: an absolute websocket URL.
		validate.RegisterValidation("wsurl", func(fl validator.FieldLevel) bool {
			return schemeIn(fl.Field().String(), "ws", "wss")
		})
	})
	return validate
}

func schemeIn(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}

// ValidateStruct validates s against its `validate` tags. The returned
// error is a *Error carrying one message per failed field.
func ValidateStruct(s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("validation: %w", err)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validation: %w", err)
	}

	out := &Error{}
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out.fields = append(out.fields, msg)
	}
	return out
}
