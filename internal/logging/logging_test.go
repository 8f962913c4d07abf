package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"phone-resale/internal/logging"
)

func TestNewWithOutput_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{" warn ", logrus.WarnLevel},
		{"loud", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}
	for _, tt := range tests {
		if got := logging.NewWithOutput(tt.level, &bytes.Buffer{}).GetLevel(); got != tt.want {
			t.Errorf("Level %q: expected %s, got %s", tt.level, tt.want, got)
		}
	}
}

func TestLogError_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOutput("info", &buf)

	logging.LogError(logger, "core", "CreateSale", "sale 12", map[string]int{"unit": 4}, errors.New("unit 4 is locked"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected one JSON line, got %q: %v", buf.String(), err)
	}
	want := map[string]string{"level": "error", "module": "core", "operation": "CreateSale", "context": "sale 12", "msg": "unit 4 is locked"}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("Expected %s=%q, got %v", k, v, line[k])
		}
	}
	if _, ok := line["data"]; !ok {
		t.Error("Expected data field")
	}
}
