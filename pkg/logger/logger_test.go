package logger

import (
	"exam_prep_backend/internal/config"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestInitLogger_WritesJSONFile(t *testing.T) {
	t.Cleanup(InitNop)
	path := filepath.Join(t.TempDir(), "app.log")
	InitLogger(&config.Config{
		Server: config.ServerConfig{Mode: "release"},
		Log:    config.LogConfig{Path: path},
	})

	Log.Debug("hidden in release")
	Log.Info("Submission scored", zap.String("attemptId", "a-1"))
	Log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, `"attemptId":"a-1"`) || !strings.Contains(out, `"msg":"Submission scored"`) {
		t.Errorf("log file = %s", out)
	}
	if strings.Contains(out, "hidden in release") {
		t.Error("debug entry written in release mode")
	}
}

func TestOrDefault(t *testing.T) {
	if orDefault(0, 5) != 5 || orDefault(-1, 5) != 5 || orDefault(3, 5) != 3 {
		t.Error("orDefault")
	}
}
