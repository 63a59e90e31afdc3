package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "contact limit reports available slots",
			err:         &ContactLimitError{Current: 9960, Incoming: 10050, Max: 10000, Available: 40},
			wantCode:    "LIM001",
			wantMessage: "This import would exceed your contact limit (40 slots available)",
		},
		{
			name:        "wrapped parse error",
			err:         fmt.Errorf("start import: %w", &ParseError{Err: errors.New("bare quote")}),
			wantCode:    "FILE002",
			wantMessage: "File is not a valid CSV",
		},
		{
			name:        "normalization failure",
			err:         &NormalizationError{Rows: 25},
			wantCode:    "NRM001",
			wantMessage: "None of the rows could be read",
		},
		{
			name:        "token limit",
			err:         &TokenLimitError{Op: OpNormalizeRow, Tokens: 900, Limit: 400},
			wantCode:    "LIM002",
			wantMessage: "A record is too large to process",
		},
		{
			name:        "persistence failure",
			err:         &PersistenceError{Op: "save contacts", Err: errors.New("disk full")},
			wantCode:    "DB001",
			wantMessage: "Saving contacts failed",
		},
		{
			name:        "cancelled",
			err:         ErrResolutionCancelled,
			wantCode:    "IMP001",
			wantMessage: "Import was cancelled",
		},
		{
			name:        "import in progress",
			err:         ErrImportInProgress,
			wantCode:    "IMP002",
			wantMessage: "Another import is already running",
		},
		{
			name:        "too many imports",
			err:         ErrTooManyImports,
			wantCode:    "UPL001",
			wantMessage: "System is busy processing other imports",
		},
		{
			name:        "file too large pattern",
			err:         errors.New("http: request body too large"),
			wantCode:    "FILE001",
			wantMessage: "File exceeds maximum size limit",
		},
		{
			name:        "connection refused pattern",
			err:         errors.New("dial tcp: connection refused"),
			wantCode:    "DB003",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "deadline exceeded",
			err:         context.DeadlineExceeded,
			wantCode:    "UPL003",
			wantMessage: "Request timed out",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("Connection Refused by peer"),
			wantCode:    "DB003",
			wantMessage: "Unable to connect to database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrImportNotFound)

	expected := "Import session not found (Code: IMP003). The import may have expired. Please start a new import"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "typed error is user facing",
			err:  fmt.Errorf("%w: import is idle", ErrInvalidDecision),
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
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
		techErr := fmt.Errorf("get import: %w", ErrImportNotFound)
		userErr := NewUserError(techErr)

		if userErr.Error() != "Import session not found" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrImportNotFound) {
			t.Error("Unwrap() should expose the original error")
		}
		if got := MapError(userErr); got.Code != "IMP003" {
			t.Errorf("MapError(UserError) code = %q, want IMP003", got.Code)
		}
	})
}

func TestRowError(t *testing.T) {
	if got, want := RowError(3, errors.New("no name")), "Row 3: no name"; got != want {
		t.Errorf("RowError = %q, want %q", got, want)
	}
}
