package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Billing mode validation
	validate.RegisterValidation("plan_type", func(fl validator.FieldLevel) bool {
		planType := fl.Field().String()
		validTypes := []string{"free", "payg", "bundle"}
		for _, t := range validTypes {
			if planType == t {
				return true
			}
		}
		return false
	})

	// Payment purpose validation
	validate.RegisterValidation("purpose", func(fl validator.FieldLevel) bool {
		purpose := fl.Field().String()
		validPurposes := []string{"topup", "bundle_purchase"}
		for _, p := range validPurposes {
			if purpose == p {
				return true
			}
		}
		return false
	})

	// Paystack payment channel validation
	validate.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		channel := fl.Field().String()
		validChannels := []string{"card", "bank", "ussd", "bank_transfer"}
		for _, c := range validChannels {
			if channel == c {
				return true
			}
		}
		return false
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email format"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "uuid":
			errors[field] = "Invalid UUID format"
		case "plan_type":
			errors[field] = "Invalid plan type. Must be: free, payg, or bundle"
		case "purpose":
			errors[field] = "Invalid purpose. Must be: topup or bundle_purchase"
		case "channel":
			errors[field] = "Invalid payment channel. Must be: card, bank, ussd, or bank_transfer"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
