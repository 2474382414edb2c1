package pathgen

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an expert educational curriculum designer. Your task is to create a structured learning path for students.

IMPORTANT: Respond with ONLY valid JSON. No markdown, no code blocks.

For each topic, include:
- name: clear, concise topic name
- description: 1-2 sentences on what the student will learn
- difficulty: "easy", "medium" or "hard"
- estimated_time: estimated study time in minutes (15-60)
- xp_reward: XP points (50-150 based on difficulty)

Create 6-12 topics that progressively build knowledge from foundational to advanced concepts.`

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a learning path for: %s\n", req.Subject)
	fmt.Fprintf(&b, "Learning level: %s\n", req.Level)
	if req.SyllabusText != "" {
		fmt.Fprintf(&b, "\nSyllabus/topics provided by the learner:\n%s\n", req.SyllabusText)
	}
	b.WriteString(`
Respond with JSON in this exact format:
{
  "topics": [
    {
      "name": "Topic Name",
      "description": "What the student will learn",
      "difficulty": "easy",
      "estimated_time": 30,
      "xp_reward": 100
    }
  ]
}`)
	return b.String()
}

// stripFences removes an optional ``` or ```json fence around the payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
