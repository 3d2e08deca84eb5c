package handler

import (
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var (
	serverNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)
	registerOnce      sync.Once
)

// RegisterValidators adds the custom binding tags to gin's validator
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			logrus.Warn("gin validator engine is not go-playground/validator, custom tags unavailable")
			return
		}
		if err := v.RegisterValidation("servername", validServerName); err != nil {
			logrus.WithError(err).Error("Failed to register servername validator")
		}
	})
}

func validServerName(fl validator.FieldLevel) bool {
	return serverNamePattern.MatchString(fl.Field().String())
}
