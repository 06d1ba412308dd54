package workspace

import (
	"errors"
	"strings"
	"testing"

	"cadence/internal/faults"
)

func replaceLine(content, old, new string) string {
	return strings.Replace(content, old, new, 1)
}

func codeOf(t *testing.T, err error) faults.Code {
	t.Helper()
	var coded *faults.Error
	if !errors.As(err, &coded) {
		t.Fatalf("expected coded error, got %v", err)
	}
	return coded.Code
}
