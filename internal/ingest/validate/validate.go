package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/ingest/roles"
	"github.com/eddykim0118/kivo/internal/ingest/sampler"
)

const DefaultMaxBytes int64 = 10 << 20

var (
	ErrFileTooLarge            = errors.New("file too large")
	ErrUnsupportedFormat       = sampler.ErrUnsupportedFormat
	ErrIncompleteMapping       = errors.New("incomplete column mapping")
	ErrUnknownColumn           = errors.New("mapped column not in file")
	ErrDuplicateRoleAssignment = errors.New("column assigned to more than one role")
	ErrEmptyDataset            = errors.New("dataset has no data rows")
	ErrConfigOutOfBounds       = errors.New("model config out of bounds")
)

type Constraints struct {
	MaxBytes       int64
	AllowedFormats []sampler.Format
}

func DefaultConstraints() Constraints {
	return Constraints{MaxBytes: DefaultMaxBytes, AllowedFormats: sampler.AllFormats()}
}

// UploadRequest is a mapping and config that passed every gate. Nothing mutates it after Validate.
type UploadRequest struct {
	Table     *sampler.RawTable
	Roles     roles.RoleMap
	Config    forecast.ModelConfig
	Requester string
}

// FieldViolation names one ModelConfig field that failed its bound.
type FieldViolation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

type ConfigError struct {
	Violations []FieldViolation
}

func (e *ConfigError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Param != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", v.Field, v.Rule, v.Param))
		} else {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s", v.Field, v.Rule))
		}
	}
	return ErrConfigOutOfBounds.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ConfigError) Unwrap() error { return ErrConfigOutOfBounds }

type Validator struct {
	constraints Constraints
	structs     *validator.Validate
}

func New(c Constraints) *Validator {
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if len(c.AllowedFormats) == 0 {
		c.AllowedFormats = sampler.AllFormats()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Validator{constraints: c, structs: v}
}

func (v *Validator) Constraints() Constraints { return v.constraints }

// CheckFile gates an upload on size and declared type before any parsing happens.
func (v *Validator) CheckFile(size int64, filename, contentType string) (sampler.Format, error) {
	if size > v.constraints.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, size, v.constraints.MaxBytes)
	}
	format, err := sampler.DetectFormat(filename, contentType)
	if err != nil {
		return "", err
	}
	for _, allowed := range v.constraints.AllowedFormats {
		if allowed == format {
			return format, nil
		}
	}
	return "", fmt.Errorf("%w: %s uploads are disabled", ErrUnsupportedFormat, format)
}

// ValidateMapping checks the confirmed role map against the parsed table.
func (v *Validator) ValidateMapping(table *sampler.RawTable, m roles.RoleMap) error {
	if missing := m.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, r := range missing {
			names[i] = string(r)
		}
		return fmt.Errorf("%w: missing %s", ErrIncompleteMapping, strings.Join(names, ", "))
	}
	owner := make(map[string]roles.Role, len(roles.Order))
	for _, r := range roles.Order {
		col := m.Get(r)
		if prev, dup := owner[col]; dup {
			return fmt.Errorf("%w: %q used for %s and %s", ErrDuplicateRoleAssignment, col, prev, r)
		}
		owner[col] = r
	}
	if table == nil {
		return ErrEmptyDataset
	}
	for _, r := range roles.Order {
		if col := m.Get(r); !table.HasColumn(col) {
			return fmt.Errorf("%w: %s column %q", ErrUnknownColumn, r, col)
		}
	}
	if table.TotalRows == 0 {
		return ErrEmptyDataset
	}
	return nil
}

func (v *Validator) ValidateConfig(cfg forecast.ModelConfig) error {
	err := v.structs.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrConfigOutOfBounds, err)
	}
	out := &ConfigError{}
	for _, fe := range fieldErrs {
		out.Violations = append(out.Violations, FieldViolation{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// Validate runs every gate and returns the request ready for submission.
func (v *Validator) Validate(table *sampler.RawTable, m roles.RoleMap, cfg forecast.ModelConfig, requester string) (*UploadRequest, error) {
	if err := v.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if err := v.ValidateMapping(table, m); err != nil {
		return nil, err
	}
	return &UploadRequest{Table: table, Roles: m, Config: cfg, Requester: requester}, nil
}
