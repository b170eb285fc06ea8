package render

import "eventboard/internal/model"

// Nav is the navigation bar state for a session.
type Nav struct {
	LoggedIn      bool
	Username      string
	ShowLogin     bool
	ShowLogout    bool
	ShowAdmin     bool
	ShowCreate    bool
	ShowAnalytics bool
}

func NewNav(s model.Session) Nav {
	n := Nav{
		LoggedIn: s.LoggedIn(),
		Username: s.Username,
	}
	n.ShowLogin = !n.LoggedIn
	n.ShowLogout = n.LoggedIn
	if n.LoggedIn {
		n.ShowAdmin = s.Role == model.RoleAdmin
	}
	n.ShowCreate = s.Role.IsStaff()
	n.ShowAnalytics = s.Role.IsStaff()
	return n
}
