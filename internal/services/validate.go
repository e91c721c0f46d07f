package services

import (
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

// validator collects the first failure per field.
type validator struct {
	fields map[string]string
}

func (v *validator) fail(field, msg string) {
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, exists := v.fields[field]; !exists {
		v.fields[field] = msg
	}
}

func (v *validator) required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.fail(field, "is required")
		return false
	}
	return true
}

func (v *validator) length(field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	if min > 0 && n < min {
		v.fail(field, "is too short")
	}
	if max > 0 && n > max {
		v.fail(field, "is too long")
	}
}

func (v *validator) email(field, value string) {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		v.fail(field, "must be a valid email address")
	}
}

func (v *validator) url(field, value string) {
	if value == "" {
		return
	}
	u, err := url.ParseRequestURI(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.fail(field, "must be a valid URL")
	}
}

func (v *validator) check(ok bool, field, msg string) {
	if !ok {
		v.fail(field, msg)
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
