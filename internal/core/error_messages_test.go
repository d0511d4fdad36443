package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "truncated table",
			err:      errors.New("dbf decode error: truncated input reading record 3 of 10 (offset 120)"),
			wantCode: "DEC002",
		},
		{
			name:     "empty table",
			err:      errors.New("dbf decode error: no table data: empty table data"),
			wantCode: "DEC003",
		},
		{
			name:     "generic dbf error",
			err:      errors.New("dbf decode error: invalid record count -1 (offset 4)"),
			wantCode: "DEC001",
		},
		{
			name:     "expression syntax",
			err:      &ExpressionError{Source: "value +", Phase: PhaseCompile, Err: errors.New("unexpected token EOF")},
			wantCode: "EXP001",
		},
		{
			name:     "expression runtime",
			err:      &ExpressionError{Source: "1/value", Phase: PhaseEval, Err: errors.New("boom")},
			wantCode: "EXP002",
		},
		{
			name:     "filter not boolean inside export error",
			err:      &ExportError{Stage: StageFilter, Row: 4, Err: &FilterError{Reason: "expression returned int, want bool"}},
			wantCode: "FLT002",
		},
		{
			name:     "filter evaluation",
			err:      &FilterError{Reason: "evaluation failed", Err: &ExpressionError{Phase: PhaseEval, Err: errors.New("x")}},
			wantCode: "FLT001",
		},
		{
			name:     "filter compile reports expression syntax",
			err:      &FilterError{Reason: "invalid filter expression", Err: &ExpressionError{Phase: PhaseCompile, Err: errors.New("x")}},
			wantCode: "EXP001",
		},
		{
			name:     "cancelled export",
			err:      &ExportError{Stage: StageCancelled, Err: context.Canceled},
			wantCode: "XPT001",
		},
		{
			name:     "busy",
			err:      fmt.Errorf("start export: %w", ErrTooManyExports),
			wantCode: "XPT002",
		},
		{
			name:     "expired export",
			err:      fmt.Errorf("%w: abc", ErrExportNotFound),
			wantCode: "XPT003",
		},
		{
			name:     "duplicate template",
			err:      fmt.Errorf("create template: %w", ErrTemplateExists),
			wantCode: "TPL001",
		},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp: connection refused"),
			wantCode: "DB004",
		},
		{
			name:     "rate limit",
			err:      errors.New("rate limit exceeded"),
			wantCode: "RATE001",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
		{
			name:     "case insensitive matching",
			err:      errors.New("UNSUPPORTED SOURCE FORMAT .pdf"),
			wantCode: "DEC004",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyExports)

	expected := "Too many exports are running (Code: XPT002). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", errors.New("file too large"), true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("get template: %w", ErrTemplateNotFound)
		userErr := NewUserError(techErr)

		if userErr.Error() != "The saved mapping does not exist" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrTemplateNotFound) {
			t.Error("Unwrap() should return original error")
		}
	})
}
