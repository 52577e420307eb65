package chat

import "strings"

// FilterUsers returns users whose name contains query, ignoring case. An
// empty query matches nobody.
func FilterUsers(users []User, query string) []User {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]User, 0)
	if q == "" {
		return out
	}
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), q) {
			out = append(out, u)
		}
	}
	return out
}
