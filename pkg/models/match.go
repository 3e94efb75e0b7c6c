package models

// MatchScoreBreakdown is the auditable decomposition of a soft match score.
// Each field is a signed contribution; Total is the clamped sum and always
// sits in [0, 100].
type MatchScoreBreakdown struct {
	Total     int `json:"total"`
	Remote    int `json:"remote"`
	Location  int `json:"location"`
	Skills    int `json:"skills"`
	Seniority int `json:"seniority"`
	Keywords  int `json:"keywords"`
}
