package domain

import "encoding/json"

// WorkerProfile is the identity snapshot shown across the portal. It is
// merged from the upstream user and worker records at login.
type WorkerProfile struct {
	ID         ID       `json:"id"`
	Username   string   `json:"username"`
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name"`
	Role       string   `json:"role"`
	Department NamedRef `json:"department"`
	Office     NamedRef `json:"office"`
}

// UnmarshalJSON folds the department_name/office_name spellings into the
// flat department/office fields.
func (p *WorkerProfile) UnmarshalJSON(data []byte) error {
	type plain WorkerProfile
	var raw struct {
		plain
		DepartmentName NamedRef `json:"department_name"`
		OfficeName     NamedRef `json:"office_name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = WorkerProfile(raw.plain)
	if p.Department == "" {
		p.Department = raw.DepartmentName
	}
	if p.Office == "" {
		p.Office = raw.OfficeName
	}
	return nil
}

// FullName joins first and last name, falling back to the username.
func (p WorkerProfile) FullName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	default:
		return p.Username
	}
}

// Session pairs a validated upstream token with the worker it belongs to.
type Session struct {
	Token   string
	Profile WorkerProfile
}
