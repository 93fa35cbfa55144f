package seed

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/database"
	"os"
	"path/filepath"
	"testing"
)

const bank = `
tests:
  - title: Kinematics drill
    published: true
    questions:
      - type: single_choice
        content: "A car accelerates from rest..."
        options: ["2 m/s", "4 m/s", "8 m/s"]
        answer: "4 m/s"
        topic: kinematics
        difficulty: -0.5
      - type: essay
        content: Describe projectile motion.
  - title: Draft set
    questions:
      - type: true_false
        content: Velocity is a vector.
        answer: "true"
`

func TestParse(t *testing.T) {
	inputs, err := Parse([]byte(bank))
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 2 {
		t.Fatalf("tests = %d, want 2", len(inputs))
	}
	q := inputs[0].Questions[0]
	if q.QuestionType != model.QuestionTypeSingleChoice || q.Difficulty != -0.5 || string(q.Options) != `["2 m/s","4 m/s","8 m/s"]` {
		t.Errorf("question = %+v", q)
	}
	if !inputs[0].IsPublished || inputs[1].IsPublished {
		t.Error("published flags not carried")
	}
	if inputs[0].Questions[1].Options != nil {
		t.Error("essay should have no options")
	}

	if _, err := Parse([]byte("tests: [")); err == nil {
		t.Error("expected yaml error")
	}
}

func TestImport(t *testing.T) {
	db, err := database.OpenSQLite("file::memory:")
	if err != nil {
		t.Fatal(err)
	}
	svc := service.NewTestService(repository.NewTestRepository(db, nil))
	dir := t.TempDir()

	good := filepath.Join(dir, "bank.yaml")
	if err := os.WriteFile(good, []byte(bank), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := Import(context.Background(), svc, good)
	if err != nil || n != 2 {
		t.Fatalf("Import = %d, %v", n, err)
	}
	var count int64
	db.Model(&model.TestQuestion{}).Count(&count)
	if count != 3 {
		t.Errorf("questions = %d, want 3", count)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("tests:\n  - title: ok\n    questions:\n      - {type: single_choice, content: c, answer: A}\n  - title: broken\n    questions:\n      - {type: single_choice, content: c}\n"), 0o644)
	n, err = Import(context.Background(), svc, bad)
	if n != 1 || !errors.Is(err, util.ErrInvalidSubmission) {
		t.Fatalf("Import bad = %d, %v", n, err)
	}

	if _, err := Import(context.Background(), svc, filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected missing file error")
	}
}
