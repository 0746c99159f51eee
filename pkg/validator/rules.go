package validator

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Enum is a closed set of values that knows its own members.
type Enum interface {
	comparable
	Valid() bool
}

// Required fails on strings that are empty after trimming whitespace.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: newError(field, ErrFieldRequired.Error(), "validation.required", nil),
	}
}

// MaxLen limits value to max characters, counted in runes.
func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: newError(field, fmt.Sprintf("must be at most %d characters long", max),
			"validation.max_length", map[string]any{"max": max}),
	}
}

func RequiredSlice[T any](field string, value []T) Rule {
	return Rule{
		Check: func() bool { return len(value) > 0 },
		Error: newError(field, ErrFieldRequired.Error(), "validation.required", nil),
	}
}

func MaxItems[T any](field string, value []T, max int) Rule {
	return Rule{
		Check: func() bool { return len(value) <= max },
		Error: newError(field, fmt.Sprintf("must have at most %d items", max),
			"validation.max_items", map[string]any{"max": max}),
	}
}

// Unique fails when value holds the same item twice.
func Unique[T comparable](field string, value []T) Rule {
	return Rule{
		Check: func() bool {
			seen := make(map[T]struct{}, len(value))
			for _, v := range value {
				if _, dup := seen[v]; dup {
					return false
				}
				seen[v] = struct{}{}
			}
			return true
		},
		Error: newError(field, "must not contain duplicates", "validation.unique", nil),
	}
}

func OneOf[T comparable](field string, value T, allowed []T) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(allowed, value) },
		Error: newError(field, fmt.Sprintf("must be one of: %v", allowed),
			"validation.in_list", map[string]any{"allowed_values": allowed}),
	}
}

// Known fails when value is not a member of its enumeration.
func Known[T Enum](field string, value T) Rule {
	return Rule{
		Check: value.Valid,
		Error: newError(field, fmt.Sprintf("unknown value %v", value),
			"validation.unknown_value", map[string]any{"value": value}),
	}
}

// AllKnown is Known applied to every element of values.
func AllKnown[T Enum](field string, values []T) Rule {
	return Rule{
		Check: func() bool {
			for _, v := range values {
				if !v.Valid() {
					return false
				}
			}
			return true
		},
		Error: newError(field, fmt.Sprintf("contains unknown values: %v", values),
			"validation.unknown_values", map[string]any{"values": values}),
	}
}

// ClockTime requires a 24h "HH:MM" time of day.
func ClockTime(field, value string) Rule {
	return Rule{
		Check: func() bool {
			_, err := time.Parse("15:04", value)
			return err == nil
		},
		Error: newError(field, "must be a time of day in HH:MM format", "validation.clock_time", nil),
	}
}

// Timezone requires an IANA zone name. Empty values pass.
func Timezone(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if value == "" {
				return true
			}
			_, err := time.LoadLocation(value)
			return err == nil
		},
		Error: newError(field, "must be an IANA time zone", "validation.timezone", nil),
	}
}
