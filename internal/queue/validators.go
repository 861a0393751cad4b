package queue

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/marcus/rollcall/internal/models"
)

var (
	// custom validation tags & texts
	notBlankTag      = "notblank"
	notBlankText     = "{0} is required"
	calendarDateTag  = "calendar_date"
	calendarDateText = "{0} must be a calendar date (YYYY-MM-DD)"

	requiredTag  = "required"
	requiredText = "{0} is required"
)

// newValidator builds a validator reporting errors by JSON field name with
// English messages.
func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	registerTranslation(validate, translator, notBlankTag, notBlankText)

	_ = validate.RegisterValidation(calendarDateTag, calendarDateValidation)
	registerTranslation(validate, translator, calendarDateTag, calendarDateText)

	registerTranslation(validate, translator, requiredTag, requiredText, true)

	return validate, translator
}

func registerTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// notBlankValidation rejects empty and whitespace-only strings.
func notBlankValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// calendarDateValidation accepts real dates in YYYY-MM-DD form only.
func calendarDateValidation(fl validator.FieldLevel) bool {
	_, err := time.Parse(models.DateLayout, fl.Field().String())
	return err == nil
}
