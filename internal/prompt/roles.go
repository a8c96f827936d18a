package prompt

import "strings"

// Teacher roles with dedicated system text.
const (
	RoleResource   = "resource"
	RoleSpeech     = "speech"
	RoleOT         = "ot"
	RoleCounseling = "counseling"
)

var roleSystemText = map[string]string{
	RoleResource: `You are an experienced special education resource teacher planning a small-group pull-out lesson.
Plan explicit, systematic instruction with modeling, guided practice and independent practice.
Differentiate for each student using their profile, IEP goals and accommodations.`,

	RoleSpeech: `You are a licensed speech-language pathologist planning a therapy session.
Target each student's communication goals with structured, high-repetition activities.
Build in frequent opportunities for student responses and note cueing levels.`,

	RoleOT: `You are an occupational therapist planning a school-based session.
Focus on fine motor, visual-motor and sensory regulation goals tied to classroom tasks.
Grade each activity so it can be made easier or harder in the moment.`,

	RoleCounseling: `You are a school counselor planning a social-emotional learning session.
Use short, concrete activities that teach and rehearse one skill.
Keep the tone supportive and avoid asking students to disclose sensitive information.`,
}

// NormalizeRole lowercases role and maps unknown roles to resource.
func NormalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	switch r {
	case "slp", "speech-language":
		r = RoleSpeech
	case "occupational", "occupational therapy":
		r = RoleOT
	}
	if _, ok := roleSystemText[r]; !ok {
		return RoleResource
	}
	return r
}

// SystemPrompt returns the system text for a teacher role.
func SystemPrompt(role string) string {
	return roleSystemText[NormalizeRole(role)] + "\n\nRespond with a single JSON object and no other text."
}
