package shared

import (
	"errors"
	"fmt"
	"testing"
)

type fakeCoded struct{ code int }

func (f fakeCoded) Error() string { return fmt.Sprintf("sqlite error %d", f.code) }
func (f fakeCoded) Code() int     { return f.code }

func TestIsSQLiteConflictError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"busy text", errors.New("SQLITE_BUSY: try again"), true},
		{"locked text", errors.New("database is locked"), true},
		{"busy code", fakeCoded{code: 5}, true},
		{"extended busy code", fmt.Errorf("insert: %w", fakeCoded{code: 5 | (2 << 8)}), true},
		{"locked code", fakeCoded{code: 6}, true},
		{"constraint code", fakeCoded{code: 19}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSQLiteConflictError(tt.err); got != tt.want {
				t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
