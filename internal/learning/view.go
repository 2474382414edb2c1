package learning

import (
	"github.com/p-n-ai/studyflow/internal/progression"
)

// TopicView is a topic with its derived sequencing flags.
type TopicView struct {
	Topic
	IsNext   bool `json:"is_next"`
	IsLocked bool `json:"is_locked"`
}

// CourseView is a course with ordered topics and progress recomputed from
// them on every read.
type CourseView struct {
	Course
	LevelLabel  string                     `json:"learning_level_label"`
	Topics      []TopicView                `json:"topics"`
	Progress    progression.CourseProgress `json:"progress"`
	NextTopicID string                     `json:"next_topic_id,omitempty"`
}

// NewCourseView derives the sequencing and progress of c.
func NewCourseView(c Course) CourseView {
	topics := append([]Topic(nil), c.Topics...)
	SortTopics(topics)

	sel := progression.SelectNext(topics, func(t Topic) bool { return t.IsCompleted })
	view := CourseView{
		Course:     c,
		LevelLabel: c.LearningLevel.Label(),
		Topics:     make([]TopicView, len(topics)),
		Progress:   progression.Aggregate(topicStates(topics)),
	}
	view.Course.Topics = topics
	for i, t := range topics {
		view.Topics[i] = TopicView{
			Topic:    t,
			IsNext:   sel.IsNext(i),
			IsLocked: sel.IsLocked(i),
		}
	}
	if sel.HasNext() {
		view.NextTopicID = topics[sel.Next].ID
	}
	return view
}

// IsLocked reports whether topicID sits after the course's next topic.
func (v CourseView) IsLocked(topicID string) bool {
	for _, t := range v.Topics {
		if t.ID == topicID {
			return t.IsLocked
		}
	}
	return false
}

func topicStates(topics []Topic) []progression.TopicState {
	out := make([]progression.TopicState, len(topics))
	for i, t := range topics {
		out[i] = progression.TopicState{Completed: t.IsCompleted, XPReward: t.XPReward}
	}
	return out
}

// ProfileView is a profile with its position inside the current level band.
type ProfileView struct {
	Profile
	LevelLabel    string                    `json:"level_label"`
	LevelProgress progression.LevelProgress `json:"level_progress"`
}

func NewProfileView(p Profile) ProfileView {
	return ProfileView{
		Profile:       p,
		LevelLabel:    levelLabel(p.Level),
		LevelProgress: progression.ProgressFor(p.XP),
	}
}
