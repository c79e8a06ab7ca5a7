// internal/models/profile.go
package models

import "strings"

// CandidateProfile is the parsed-resume view the engine reads for scoring and
// form filling. Ownership (resume parsing, updates) sits with upstream
// ingestion; the engine treats it as read only.
type CandidateProfile struct {
	UserID          string            `json:"userId"`
	FullName        string            `json:"fullName"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	Location        string            `json:"location"`
	LinkedIn        string            `json:"linkedin,omitempty"`
	Website         string            `json:"website,omitempty"`
	Summary         string            `json:"summary"`
	Skills          []string          `json:"skills"`
	YearsBySkill    map[string]int    `json:"yearsBySkill,omitempty"`
	TotalExperience int               `json:"totalExperience"`
	ResumePath      string            `json:"resumePath"`
	CoverLetterPath string            `json:"coverLetterPath,omitempty"`
	Answers         map[string]string `json:"answers,omitempty"`
}

// HasSkill reports whether the profile lists the skill, case-insensitively.
func (p *CandidateProfile) HasSkill(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range p.Skills {
		if strings.ToLower(s) == name {
			return true
		}
	}
	return false
}

// SkillYears returns the recorded years for a skill. For a known skill with no
// recorded figure it returns 1, never 0: answering "0 years" for a skill the
// resume lists would contradict the resume itself.
func (p *CandidateProfile) SkillYears(name string) (int, bool) {
	if p.YearsBySkill != nil {
		key := strings.ToLower(strings.TrimSpace(name))
		for k, v := range p.YearsBySkill {
			if strings.ToLower(k) == key {
				if v < 1 {
					return 1, true
				}
				return v, true
			}
		}
	}
	if p.HasSkill(name) {
		return 1, true
	}
	return 0, false
}
