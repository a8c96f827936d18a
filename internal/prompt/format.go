package prompt

import "fmt"

// responseFormat describes the JSON object the model must return.
func responseFormat(duration int) string {
	return fmt.Sprintf(`Return one JSON object with exactly these fields:
{
  "title": "short lesson title",
  "objectives": ["measurable objective"],
  "materials": ["material"],
  "activities": [
    {"name": "activity name", "minutes": 5, "description": "what the teacher and students do"}
  ],
  "student_adaptations": [
    {"student_id": "id from STUDENT PROFILES", "adaptation": "how this student's work differs"}
  ],
  "assessment": "how progress is checked during the lesson",
  "notes": "anything the teacher should prepare"
}
Activity minutes must sum to %d. Include one student_adaptations entry per student.`, duration)
}
