package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "chanalysis/internal/errors"
)

var tickerPattern = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)

// RunQuery carries the optional overrides accepted by the run endpoint
type RunQuery struct {
	TopN    *int     `query:"top_n" validate:"omitempty,gte=1,lte=100"`
	Period  *int     `query:"period" validate:"omitempty,gte=1,lte=60"`
	Symbols []string `query:"symbols" validate:"omitempty,max=200,dive,ticker"`
}

// QueryValidator binds and validates query parameters with validator struct tags
type QueryValidator struct {
	validate *validator.Validate
}

// NewQueryValidator creates a validator with the ticker rule registered
func NewQueryValidator() *QueryValidator {
	v := validator.New()
	_ = v.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerPattern.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("query")
	})
	return &QueryValidator{validate: v}
}

// BindRunQuery reads top_n, period and symbols from the request URL.
// Errors are *apierrors.APIError values ready for the error handler.
func (v *QueryValidator) BindRunQuery(r *http.Request) (RunQuery, error) {
	var q RunQuery
	values := r.URL.Query()

	var err error
	if q.TopN, err = optionalInt(values.Get("top_n"), "top_n"); err != nil {
		return RunQuery{}, err
	}
	if q.Period, err = optionalInt(values.Get("period"), "period"); err != nil {
		return RunQuery{}, err
	}
	if raw := values.Get("symbols"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				q.Symbols = append(q.Symbols, s)
			}
		}
	}

	if err := v.validate.Struct(q); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return RunQuery{}, apierrors.InvalidParameter(fieldName(fe), describe(fe))
		}
		return RunQuery{}, err
	}
	return q, nil
}

func optionalInt(raw, field string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apierrors.InvalidParameter(field, "must be an integer")
	}
	return &n, nil
}

// fieldName strips the slice index validator appends for dive errors
func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if i := strings.IndexByte(name, '['); i >= 0 {
		return name[:i]
	}
	return name
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "max":
		return fmt.Sprintf("must list at most %s entries", fe.Param())
	case "ticker":
		return fmt.Sprintf("%q is not a valid ticker", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
