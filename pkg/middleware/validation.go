package middleware

import (
	stderrors "errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/services/invoice-service/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var customValidations = map[string]validator.Func{
	"currency":    validateCurrency,
	"decimal":     validateDecimal,
	"positive":    validatePositiveDecimal,
	"safe_string": validateSafeString,
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

func register(v *validator.Validate) {
	for tag, fn := range customValidations {
		_ = v.RegisterValidation(tag, fn)
	}
	v.RegisterTagNameFunc(jsonTagName)
}

// InitValidator initializes the validator with custom validators and installs them on Gin's
// binding engine.
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		register(validate)

		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			register(v)
		}
	})

	return validate
}

var (
	currencyRegex   = regexp.MustCompile(`^[A-Za-z]{3}$`)
	safeStringRegex = regexp.MustCompile(`^[^\x00-\x08\x0B\x0C\x0E-\x1F\x7F]*$`)
)

func validateCurrency(fl validator.FieldLevel) bool {
	return currencyRegex.MatchString(strings.TrimSpace(fl.Field().String()))
}

func validateDecimal(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && !d.IsNegative()
}

func validatePositiveDecimal(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && d.IsPositive()
}

func validateSafeString(fl validator.FieldLevel) bool {
	return safeStringRegex.MatchString(fl.Field().String())
}

// ValidationErrorFormatter formats validation errors into a map keyed by JSON field path
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			fields[fieldPath(e)] = formatValidationError(e)
		}
	}

	return fields
}

// fieldPath drops the top-level struct name from the namespace
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "currency":
		return "must be a three-letter currency code"
	case "decimal":
		return "must be a non-negative decimal number"
	case "positive":
		return "must be a positive decimal number"
	case "safe_string":
		return "contains invalid characters"
	default:
		return "is invalid"
	}
}

// BindAndValidate binds the JSON request body and validates it
func BindAndValidate(c *gin.Context, obj any) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if stderrors.As(err, &validationErrors) {
			return errors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// InputSanitizer middleware sanitizes query parameters
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		for key, values := range query {
			for i, v := range values {
				values[i] = SanitizeString(v)
			}
			query[key] = values
		}
		c.Request.URL.RawQuery = query.Encode()

		c.Next()
	}
}

// ContentType middleware rejects non-JSON bodies on POST and PUT
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			contentType := c.GetHeader("Content-Type")
			if !strings.HasPrefix(contentType, "application/json") && c.Request.ContentLength > 0 {
				AbortWithAppError(c, errors.NewAppError("INVALID_CONTENT_TYPE", "Content-Type must be application/json", http.StatusUnsupportedMediaType))
				return
			}
		}
		c.Next()
	}
}
