package notify

import "strings"

var phoneStripper = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// NormalizePhone converts a locally formatted Croatian number to the
// international format the messenger API expects (385...).
func NormalizePhone(phone string) string {
	p := phoneStripper.Replace(phone)
	p = strings.TrimPrefix(p, "+")
	p = strings.TrimPrefix(p, "00")
	if strings.HasPrefix(p, "0") {
		p = "385" + p[1:]
	}
	return p
}
