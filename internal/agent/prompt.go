package agent

import (
	"fmt"
	"strings"
)

// topicContext is what the tutor knows about the topic being studied.
type topicContext struct {
	Topic       string
	Description string
	Course      string
	Level       string
}

const notesSystemPrompt = `You are an expert tutor writing study notes for a single topic of a course.

Write clear, well-structured notes in Markdown:
- Start with a short overview of the topic
- Explain the key concepts with simple examples
- Call out common mistakes
- Finish with a short summary and 3 self-check questions

Match the depth and vocabulary to the learner's level. Keep the notes focused on this topic only.`

const chatSystemPrompt = `You are a friendly and encouraging tutor helping a learner with one topic of their course.

TEACHING STYLE:
- Start with what the learner knows, build from there
- Use simple, relatable examples
- Break complex problems into small steps
- If the learner is stuck, give a hint before the answer
- Keep responses concise; this is a chat, not a textbook

RULES:
- Never give answers without explanation
- Stay on the topic below; gently steer back if the learner drifts
- Match the explanation to the learner's level
- Be patient and never condescending`

const summaryPrompt = `Summarize this tutoring conversation concisely. Capture:
- Concepts discussed
- What the learner understood or struggled with
- Any examples or problems worked through
Keep the summary under 150 words. Write in the same language used in the conversation.`

func (c topicContext) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TOPIC: %s\n", c.Topic)
	if c.Description != "" {
		fmt.Fprintf(&b, "DESCRIPTION: %s\n", c.Description)
	}
	if c.Course != "" {
		fmt.Fprintf(&b, "COURSE: %s\n", c.Course)
	}
	fmt.Fprintf(&b, "LEARNER LEVEL: %s", c.Level)
	return b.String()
}

func notesUserPrompt(c topicContext) string {
	return "Write study notes for this topic.\n\n" + c.String()
}

func chatSystem(c topicContext) string {
	return chatSystemPrompt + "\n\n" + c.String()
}
