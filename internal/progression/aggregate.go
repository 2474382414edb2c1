package progression

// TopicState is the part of a topic the aggregator needs.
type TopicState struct {
	Completed bool
	XPReward  int64
}

// CourseProgress is the derived completion view of one course.
type CourseProgress struct {
	CompletedCount int   `json:"completed_count"`
	TotalCount     int   `json:"total_count"`
	Percentage     int   `json:"percentage"`
	IsCompleted    bool  `json:"is_completed"`
	EarnedXP       int64 `json:"earned_xp"`
	TotalXP        int64 `json:"total_xp"`
}

// Aggregate derives a course's progress from its topics.
func Aggregate(topics []TopicState) CourseProgress {
	var p CourseProgress
	p.TotalCount = len(topics)
	for _, t := range topics {
		p.TotalXP += t.XPReward
		if t.Completed {
			p.CompletedCount++
			p.EarnedXP += t.XPReward
		}
	}
	p.Percentage = Percentage(p.CompletedCount, p.TotalCount)
	p.IsCompleted = p.TotalCount > 0 && p.CompletedCount == p.TotalCount
	return p
}

// Percentage returns round-half-up(100 * completed / total), or 0 for no topics.
func Percentage(completed, total int) int {
	return roundPercent(int64(completed), int64(total))
}

// LearnerStats summarizes progress across all of a learner's courses.
type LearnerStats struct {
	TotalCourses     int   `json:"total_courses"`
	CompletedCourses int   `json:"completed_courses"`
	TotalTopics      int   `json:"total_topics"`
	CompletedTopics  int   `json:"completed_topics"`
	EarnedXP         int64 `json:"earned_xp"`
	Percentage       int   `json:"percentage"`
}

// Summarize folds per-course progress into learner-wide stats.
func Summarize(courses []CourseProgress) LearnerStats {
	var s LearnerStats
	s.TotalCourses = len(courses)
	for _, c := range courses {
		if c.IsCompleted {
			s.CompletedCourses++
		}
		s.TotalTopics += c.TotalCount
		s.CompletedTopics += c.CompletedCount
		s.EarnedXP += c.EarnedXP
	}
	s.Percentage = Percentage(s.CompletedTopics, s.TotalTopics)
	return s
}
