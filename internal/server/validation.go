package server

import (
	"regexp"
	"strings"
	"sync"

	"dles/internal/db"
	"dles/internal/roles"

	goaway "github.com/TwiN/go-away"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const maxImportRecords = 5000

var colorPattern = regexp.MustCompile(`^([a-z]{3,16}|#[0-9a-fA-F]{6})$`)

var validatorOnce sync.Once

func registerValidators() {
	validatorOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = engine.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = engine.RegisterValidation("topic", func(fl validator.FieldLevel) bool {
			return db.ValidTopic(fl.Field().String())
		})
		_ = engine.RegisterValidation("safeurl", func(fl validator.FieldLevel) bool {
			return db.ValidLink(fl.Field().String())
		})
		_ = engine.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return roles.Valid(roles.Role(fl.Field().String()))
		})
		_ = engine.RegisterValidation("listcolor", func(fl validator.FieldLevel) bool {
			return validColor(fl.Field().String())
		})
	})
}

func validColor(color string) bool {
	return color == "" || colorPattern.MatchString(color)
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// cleanText masks profanity in user-supplied display text.
func cleanText(text string) string {
	text = normalizeText(text)
	if text == "" || !goaway.IsProfane(text) {
		return text
	}
	return goaway.Censor(text)
}
