package social

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// ProviderError captures a normalized provider response failure.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
	Raw         map[string]any
}

func (e *ProviderError) scope() string {
	switch {
	case e.Provider != "" && e.Operation != "":
		return e.Provider + " " + e.Operation
	case e.Provider != "":
		return e.Provider
	case e.Operation != "":
		return e.Operation
	}
	return "provider"
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	switch {
	case e.Description != "":
		return fmt.Sprintf("%s failed: %s", e.scope(), e.Description)
	case e.Code != "":
		return fmt.Sprintf("%s failed: %s", e.scope(), e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.scope(), e.Err)
	}
	return e.scope() + " failed"
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Metadata flattens the populated fields for structured error output.
func (e *ProviderError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{}
	put := func(key string, ok bool, val any) {
		if ok {
			meta[key] = val
		}
	}
	put("provider", e.Provider != "", e.Provider)
	put("operation", e.Operation != "", e.Operation)
	put("status", e.Status != 0, e.Status)
	put("code", e.Code != "", e.Code)
	put("description", e.Description != "", e.Description)
	put("raw", len(e.Raw) > 0, e.Raw)

	return meta
}

// wrapProviderError attaches provider context to one of the package
// sentinels without mutating the shared sentinel value.
func wrapProviderError(base *goerrors.Error, provider, operation string, err error) error {
	if base == nil {
		return err
	}

	meta := map[string]any{}
	if provider != "" {
		meta["provider"] = provider
	}
	if operation != "" {
		meta["operation"] = operation
	}

	var perr *ProviderError
	switch {
	case errors.As(err, &perr) && perr != nil:
		for k, v := range perr.Metadata() {
			meta[k] = v
		}
	case err != nil:
		meta["error"] = err.Error()
	}

	wrapped := base.Clone()
	if wrapped == nil {
		wrapped = base
	}
	if err != nil {
		wrapped.Source = err
	}
	if len(meta) > 0 {
		wrapped.WithMetadata(meta)
	}

	return wrapped
}
