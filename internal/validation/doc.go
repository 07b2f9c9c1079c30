// Package validation provides struct validation for cmd/example's
// configuration loader, using go-playground/validator v10 with a
// thread-safe singleton validator instance.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with custom validators and user-friendly error
// messages. It integrates with cmd/example's config-loading failure path for a
// consistent startup error.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Comprehensive error translation to human-readable messages
//   - APIError conversion matching the application's error format
//   - Built-in validator support for what the config loader needs (required, url, hostname_port, oneof)
//
// # Quick Start
//
//	type ServerConfig struct {
//	    ListenAddr string `validate:"required,hostname_port"`
//	    Issuer     string `validate:"required,url"`
//	}
//
//	if err := validation.ValidateStruct(&cfg); err != nil {
//	    apiErr := err.ToAPIError()
//	    log.Fatal(apiErr.Message)
//	}
//
// # Common Validation Tags
//
// String validations:
//   - required: Field must not be empty
//   - url: Valid URL format
//   - hostname_port: Valid "host:port" pair
//
// Enum validations:
//   - oneof=a b c: Must be one of the specified values
//
// # Error Types
//
// ValidationError represents a single field validation failure:
//
//	type ValidationError struct {
//	    Field()   string      // Struct field name
//	    Tag()     string      // Validation tag that failed
//	    Param()   string      // Tag parameter (e.g., "100" for max=100)
//	    Value()   interface{} // Actual value that failed
//	    Error()   string      // Human-readable message
//	}
//
// RequestValidationError aggregates multiple field errors:
//
//	type RequestValidationError struct {
//	    Errors() []ValidationError
//	    Error()  string           // Combined message
//	    ToAPIError() *APIError    // Convert to API error format
//	}
//
// # API Error Integration
//
// The ToAPIError method produces errors matching the application format:
//
//	// Single field error
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "Email must be a valid email address",
//	    "details": {"field": "Email", "tag": "email", "value": "invalid"}
//	}
//
//	// Multiple field errors
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "Username: Username must be at least 3 characters; Email: Email is required",
//	    "details": {
//	        "fields": [
//	            {"field": "Username", "tag": "min", "message": "..."},
//	            {"field": "Email", "tag": "required", "message": "..."}
//	        ]
//	    }
//	}
//
// # Error Message Translation
//
// Human-readable messages are generated for common validation tags:
//
//	required       -> "ClientID is required"
//	url            -> "DiscoveryURL must be a valid URL"
//	hostname_port  -> "ListenAddr failed hostname_port validation"
//	oneof=a b      -> "Format must be one of: a b"
//
// # Struct Tag Examples
//
// cmd/example's config loader (cmd/example/config.go):
//
//	type OIDCConfig struct {
//	    ClientID     string `validate:"required"`
//	    DiscoveryURL string `validate:"required,url"`
//	    RedirectURI  string `validate:"required,url"`
//	}
//
// # Thread Safety
//
// The singleton validator is initialized once and safe for concurrent use:
//
//	validate := validation.GetValidator()  // Thread-safe
//	err := validation.ValidateStruct(&req) // Thread-safe
//
// # Performance
//
// The validator caches struct reflection information:
//   - First validation of a struct type: ~1ms (reflection + caching)
//   - Subsequent validations: ~10us (cached)
//   - Memory: ~500 bytes per cached struct type
//
// # See Also
//
//   - cmd/example/config.go: the config struct this package validates
//   - github.com/go-playground/validator/v10: underlying library
package validation
