package types

const redactedPlaceholder = "***REDACTED***"

// SecretString holds credentials such as provider API keys and DSNs. It
// renders redacted through fmt, slog and encoding/json so it can sit in
// config structs that get logged.
type SecretString string

func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON always emits the placeholder.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// Unmask returns the raw secret. Call sites should be limited to request
// construction.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether a value was provided.
func (s SecretString) IsSet() bool {
	return s != ""
}
