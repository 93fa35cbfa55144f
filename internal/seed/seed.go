// Package seed 从 YAML 题库文件批量导入试卷
package seed

import (
	"context"
	"encoding/json"
	"exam_prep_backend/internal/service"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

type File struct {
	Tests []Test `yaml:"tests"`
}

type Test struct {
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Published   bool       `yaml:"published"`
	Questions   []Question `yaml:"questions"`
}

type Question struct {
	Type       string   `yaml:"type"`
	Content    string   `yaml:"content"`
	Options    []string `yaml:"options"`
	Answer     string   `yaml:"answer"`
	Topic      string   `yaml:"topic"`
	Difficulty float64  `yaml:"difficulty"`
}

func Parse(data []byte) ([]service.CreateTestInput, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	inputs := make([]service.CreateTestInput, 0, len(f.Tests))
	for _, t := range f.Tests {
		in := service.CreateTestInput{
			Title:       t.Title,
			Description: t.Description,
			IsPublished: t.Published,
		}
		for _, q := range t.Questions {
			qi := service.QuestionInput{
				QuestionType: q.Type,
				Content:      q.Content,
				Answer:       q.Answer,
				Topic:        q.Topic,
				Difficulty:   q.Difficulty,
			}
			if len(q.Options) > 0 {
				raw, err := json.Marshal(q.Options)
				if err != nil {
					return nil, err
				}
				qi.Options = datatypes.JSON(raw)
			}
			in.Questions = append(in.Questions, qi)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// Import 逐套创建，遇到第一套非法试卷即停止，已导入的保留
func Import(ctx context.Context, tests *service.TestService, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	inputs, err := Parse(data)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	for i, in := range inputs {
		if _, err := tests.CreateTest(ctx, in); err != nil {
			return i, fmt.Errorf("test %d (%s): %w", i+1, in.Title, err)
		}
	}
	return len(inputs), nil
}
