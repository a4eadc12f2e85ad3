package writer

import (
	"bytes"
	"strings"
	"testing"

	"satellite/models"
)

func TestResultPrinterCompact(t *testing.T) {
	var buf bytes.Buffer
	if err := NewResultPrinter(&buf, false).Print(models.MessageResponse{Message: "order cancelled"}); err != nil {
		t.Fatalf("print: %v", err)
	}
	if got := buf.String(); got != "{\"message\":\"order cancelled\"}\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestResultPrinterPretty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewResultPrinter(&buf, true).Print(models.MessageResponse{Message: "ok"}); err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"message\": \"ok\"\n") {
		t.Fatalf("output is not indented: %q", buf.String())
	}
}
