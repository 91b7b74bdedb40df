package server

import (
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var documentExtensions = []string{"pdf", "png", "jpg", "jpeg"}

// uploadForm holds the shape of an upload request before any domain
// rule is applied.
type uploadForm struct {
	Filename string `form:"file" validate:"required,document_ext"`
	Size     int64  `form:"file" validate:"max=4194304"`
	FileType string `form:"file_type" validate:"required"`
}

// formMessages maps a failed field and rule to the message returned to
// the client.
var formMessages = map[string]string{
	"file.required":      "A file is required",
	"file.document_ext":  "The file must be a PDF, PNG, or JPG",
	"file.max":           "The file size must not exceed 4MB",
	"file_type.required": "The file type is required",
}

func newFormValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("form")
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("document_ext", func(fl validator.FieldLevel) bool {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fl.Field().String()), "."))
		return slices.Contains(documentExtensions, ext)
	})
	return v
}

// validateForm returns messages keyed by form field, or nil when the
// form is well formed. The first message follows field order and heads
// the error response.
func validateForm(v *validator.Validate, form *uploadForm) (string, map[string][]string) {
	err := v.Struct(form)
	if err == nil {
		return "", nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return msgInvalidFile, map[string][]string{"file": {msgUnexpected}}
	}

	var first string
	errs := make(map[string][]string)
	for _, fe := range validationErrs {
		msg, ok := formMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		if first == "" {
			first = msg
		}
		errs[fe.Field()] = append(errs[fe.Field()], msg)
	}
	return first, errs
}
