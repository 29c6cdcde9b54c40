package notify

import "strings"

// RedactEmail masks an address for logs, keeping the first character of the
// local part and the domain: "ded@moroz.ru" becomes "d***@moroz.ru".
// Input without "@" is masked entirely.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}
