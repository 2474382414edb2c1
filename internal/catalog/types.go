// Package catalog loads course templates that learners can start without AI
// generation.
package catalog

import "github.com/p-n-ai/studyflow/internal/learning"

// Template is a course template loaded from YAML.
type Template struct {
	ID            string                 `yaml:"id" json:"id"`
	Title         string                 `yaml:"title" json:"title"`
	Description   string                 `yaml:"description" json:"description"`
	LearningLevel learning.LearningLevel `yaml:"learning_level" json:"learning_level"`
	SyllabusText  string                 `yaml:"syllabus" json:"syllabus_text,omitempty"`
	Tags          []string               `yaml:"tags" json:"tags,omitempty"`
	Topics        []TemplateTopic        `yaml:"topics" json:"topics"`
}

// TemplateTopic is one topic of a template.
type TemplateTopic struct {
	Name          string `yaml:"name" json:"name"`
	Description   string `yaml:"description" json:"description"`
	Difficulty    string `yaml:"difficulty" json:"difficulty"`
	EstimatedTime int    `yaml:"estimated_time" json:"estimated_time"`
	XPReward      int64  `yaml:"xp_reward" json:"xp_reward"`
}

// TotalXP sums the topic rewards.
func (t Template) TotalXP() int64 {
	var total int64
	for _, tp := range t.Topics {
		total += tp.XPReward
	}
	return total
}

// Course converts the template into a course draft. The draft still needs
// Normalize before it is stored.
func (t Template) Course() learning.NewCourse {
	topics := make([]learning.NewTopic, len(t.Topics))
	for i, tp := range t.Topics {
		topics[i] = learning.NewTopic{
			Name:          tp.Name,
			Description:   tp.Description,
			Difficulty:    learning.Difficulty(tp.Difficulty),
			EstimatedTime: tp.EstimatedTime,
			XPReward:      tp.XPReward,
		}
	}
	return learning.NewCourse{
		Title:         t.Title,
		Description:   t.Description,
		LearningLevel: t.LearningLevel,
		SyllabusText:  t.SyllabusText,
		Topics:        topics,
	}
}
